package common

import (
	"regexp"
	"strings"
)

var (
	reAliasOpcode = regexp.MustCompile(`=\s*(bitcast|getelementptr(?:\s+inbounds)?|addrspacecast|inttoptr|ptrtoint)\b`)
	reRegToken    = regexp.MustCompile(`%[\w.$]+`)
	reGEPHead     = regexp.MustCompile(`^\s*getelementptr\s+(?:inbounds\s+)?`)
)

// IsPointerAliasInstruction reports whether raw is one of the
// value-preserving cast/GEP opcodes Pass.Alloc and Pass.Bounds both
// need to see through when tracing a pointer back to its origin.
func IsPointerAliasInstruction(raw string) bool {
	return reAliasOpcode.MatchString(raw)
}

// FirstOperandRegister returns the first `%register` token appearing
// after the `=` in an instruction's raw text — for bitcast/GEP/
// addrspacecast/inttoptr/ptrtoint, that is always the operand being
// transformed, since LLVM prints the source type immediately before it
// and no earlier register can appear in these opcodes' syntax. Named
// types also start with '%', so a token directly followed by '*' (a
// pointer type such as %struct.Foo*) and a getelementptr's source
// element type are skipped.
func FirstOperandRegister(raw string) string {
	idx := strings.IndexByte(raw, '=')
	rhs := raw
	if idx >= 0 {
		rhs = raw[idx+1:]
	}
	gepType := -1
	if loc := reGEPHead.FindStringIndex(rhs); loc != nil {
		gepType = loc[1]
	}
	for _, loc := range reRegToken.FindAllStringIndex(rhs, -1) {
		if loc[0] == gepType || (loc[1] < len(rhs) && rhs[loc[1]] == '*') {
			continue
		}
		return rhs[loc[0]:loc[1]]
	}
	return ""
}
