package rule

import "strings"

// ParseV1 extracts hostnames from a Traefik v1 frontend rule, for example
// "Host:a.example.com,b.example.com;PathPrefix:/api".
func ParseV1(expr string) ([]string, error) {
	var hosts hostSet

	offset := 0
	for _, part := range strings.Split(expr, ";") {
		pos := offset
		offset += len(part) + 1

		if strings.TrimSpace(part) == "" {
			continue
		}

		name, args, ok := strings.Cut(part, ":")
		if !ok {
			return nil, &ParseError{Rule: expr, Pos: pos, Msg: "expected ':' after matcher name"}
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, &ParseError{Rule: expr, Pos: pos, Msg: "empty matcher name"}
		}
		for i := 0; i < len(name); i++ {
			if !isIdentPart(name[i]) {
				return nil, &ParseError{Rule: expr, Pos: pos + i, Msg: "invalid matcher name " + name}
			}
		}

		if !hostMatcher(name) {
			continue
		}
		for _, h := range strings.Split(args, ",") {
			hosts.add(h)
		}
	}

	return hosts.list(), nil
}
