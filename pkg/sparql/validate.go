package sparql

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/securechain/sbomgen/pkg/errors"
)

// paramPattern is the allow-list for substituted parameter values.
var paramPattern = regexp.MustCompile(`^[A-Za-z0-9_.:/-]+$`)

// denyTokens are rejected case-insensitively anywhere inside a
// parameter value, even when the allow-list would let them through.
var denyTokens = []string{
	"INSERT", "DELETE", "DROP", "LOAD", "CLEAR", "CREATE",
	"CONSTRUCT", "DESCRIBE", ";", "--", "/*", "*/",
}

// readVerbs are the only query forms the client will send.
var readVerbs = []string{"SELECT", "ASK", "CONSTRUCT", "DESCRIBE"}

// ValidateParam rejects values that could alter the shape of the query
// they are substituted into. It runs before any network activity.
func ValidateParam(name, value string) error {
	const op = "sparql.ValidateParam"

	if !paramPattern.MatchString(value) {
		return errors.E(errors.KindInvalidParameter, op,
			fmt.Sprintf("parameter %q contains characters outside [A-Za-z0-9_.:/-]", name))
	}

	upper := strings.ToUpper(value)
	for _, token := range denyTokens {
		if strings.Contains(upper, token) {
			return errors.E(errors.KindInvalidParameter, op,
				fmt.Sprintf("parameter %q contains forbidden token %q", name, token))
		}
	}
	return nil
}

// literalReplacer escapes characters that would terminate or alter a
// quoted literal in the query text.
var literalReplacer = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
	"<", `\u003C`,
	">", `\u003E`,
)

// EscapeLiteral escapes a value for embedding inside a quoted literal.
// Values that passed ValidateParam cannot contain most of these
// characters; escaping is applied to every value regardless.
func EscapeLiteral(value string) string {
	return literalReplacer.Replace(value)
}

// substituteParams replaces %(name)s placeholders with the given
// values. A parameter whose placeholder does not appear in the
// template is an error: silently dropping a value would build a query
// asking something other than what the caller meant. Placeholders
// without a matching parameter are left untouched.
func substituteParams(template string, params map[string]string) (string, error) {
	if len(params) == 0 {
		return template, nil
	}
	pairs := make([]string, 0, len(params)*2)
	for name, value := range params {
		placeholder := "%(" + name + ")s"
		if !strings.Contains(template, placeholder) {
			return "", errors.E(errors.KindInvalidParameter, "sparql.Query",
				fmt.Sprintf("placeholder %s not found in query template", placeholder))
		}
		pairs = append(pairs, placeholder, value)
	}
	return strings.NewReplacer(pairs...).Replace(template), nil
}

// CheckReadOnly verifies the final query text starts with one of the
// read-only query forms.
func CheckReadOnly(query string) error {
	head := strings.ToUpper(strings.TrimSpace(query))
	for _, verb := range readVerbs {
		if strings.HasPrefix(head, verb) {
			return nil
		}
	}
	return errors.E(errors.KindInvalidQuery, "sparql.CheckReadOnly",
		"query must start with SELECT, ASK, CONSTRUCT or DESCRIBE")
}
