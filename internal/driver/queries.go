package driver

import (
	"fmt"
	"regexp"
	"strings"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ident validates a label, edge label or property name and back-quotes it
// for Cypher. Labels cannot be parameterized, so they are checked instead.
func ident(name string) (string, error) {
	if !identRe.MatchString(name) {
		return "", fmt.Errorf("invalid identifier %q", name)
	}
	return "`" + name + "`", nil
}

func mustIdents(names ...string) ([]string, error) {
	out := make([]string, len(names))
	for i, n := range names {
		q, err := ident(n)
		if err != nil {
			return nil, err
		}
		out[i] = q
	}
	return out, nil
}

// Cypher templates. %[n]s placeholders take back-quoted identifiers; values
// are always parameters.
const (
	FindVerticesQuery = `
		MATCH (n:%[1]s {%[2]s: $value})
		RETURN id(n) AS id
	`

	MergeVertexQuery = `
		MERGE (n:%[1]s {%[2]s: $value})
		RETURN id(n) AS id
	`

	SetPropertiesQuery = `
		MATCH (n)
		WHERE id(n) = $id
		SET n += $props
		RETURN id(n) AS id
	`

	FindEdgeQuery = `
		MATCH (a)-[r:%[1]s]->(b)
		WHERE id(a) = $from AND id(b) = $to
		RETURN count(r) AS n
	`

	MergeEdgeQuery = `
		MATCH (a), (b)
		WHERE id(a) = $from AND id(b) = $to
		MERGE (a)-[r:%[1]s]->(b)
		RETURN count(r) AS n
	`

	ProjectVerticesQuery = `
		MATCH (n:%[1]s)
		RETURN id(n) AS id, n.%[2]s AS key, n.%[3]s AS fk
	`

	FlattenClaimQuery = `
		MATCH (c:%[1]s {%[2]s: $key})
		WITH c LIMIT 1
		OPTIONAL MATCH (cl)-[:%[3]s]->(c)
		WITH c, head(collect(cl)) AS cl
		OPTIONAL MATCH (c)-[:%[4]s]->(aa)
		WITH c, cl, head(collect(aa)) AS aa
		OPTIONAL MATCH (c)-[:%[5]s]->(ca)
		WITH c, cl, aa, head(collect(ca)) AS ca
		RETURN c, cl, aa, ca
	`

	CountVerticesQuery = `MATCH (n) RETURN count(n) AS n`
	CountEdgesQuery    = `MATCH ()-[r]->() RETURN count(r) AS n`

	// Memgraph index syntax.
	CreateIndexQuery = `CREATE INDEX ON :%[1]s(%[2]s);`
)

func cypher(template string, names ...string) (string, error) {
	quoted, err := mustIdents(names...)
	if err != nil {
		return "", err
	}
	args := make([]any, len(quoted))
	for i, q := range quoted {
		args[i] = q
	}
	return strings.TrimSpace(fmt.Sprintf(template, args...)), nil
}
