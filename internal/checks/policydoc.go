package checks

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// policyDocument is the subset of the IAM policy grammar the checkers read.
// IAM returns documents URL-encoded; KMS returns them as plain JSON. Both
// are accepted by parsePolicyDocument.
type policyDocument struct {
	Statement statementList `json:"Statement"`
}

type statement struct {
	Effect    string         `json:"Effect"`
	Principal principal      `json:"Principal"`
	Action    stringList     `json:"Action"`
	Resource  stringList     `json:"Resource"`
	Condition map[string]any `json:"Condition"`
}

// statementList accepts a single statement object or an array of them.
type statementList []statement

func (l *statementList) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '{' {
		var s statement
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = statementList{s}
		return nil
	}
	var ss []statement
	if err := json.Unmarshal(b, &ss); err != nil {
		return err
	}
	*l = ss
	return nil
}

// stringList accepts a JSON string or an array of strings.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = stringList{s}
		return nil
	}
	var ss []string
	if err := json.Unmarshal(b, &ss); err != nil {
		return err
	}
	*l = ss
	return nil
}

func (l stringList) contains(v string) bool {
	for _, s := range l {
		if s == v {
			return true
		}
	}
	return false
}

// principal is either the bare wildcard "*" or a map of principal types.
type principal struct {
	Wildcard  bool       `json:"-"`
	AWS       stringList `json:"AWS"`
	Service   stringList `json:"Service"`
	Federated stringList `json:"Federated"`
}

func (p *principal) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		p.Wildcard = s == "*"
		return nil
	}
	type plain principal
	var v plain
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*p = principal(v)
	return nil
}

// anyone reports whether the principal matches every AWS identity.
func (p principal) anyone() bool {
	return p.Wildcard || p.AWS.contains("*")
}

var accountInARN = regexp.MustCompile(`^arn:aws[a-z-]*:iam::(\d{12}):`)

// externalAccounts returns the AWS account ids named by the principal other
// than self. Both bare account ids and IAM ARNs are recognised.
func (p principal) externalAccounts(self string) []string {
	var out []string
	for _, v := range p.AWS {
		id := v
		if m := accountInARN.FindStringSubmatch(v); m != nil {
			id = m[1]
		}
		if len(id) != 12 || id == self || strings.Trim(id, "0123456789") != "" {
			continue
		}
		out = append(out, id)
	}
	return out
}

func (s statement) allows() bool {
	return strings.EqualFold(s.Effect, "Allow")
}

func (s statement) conditional() bool {
	return len(s.Condition) > 0
}

// parsePolicyDocument decodes raw, URL-unescaping it first when needed.
func parsePolicyDocument(raw string) (*policyDocument, error) {
	doc := strings.TrimSpace(raw)
	if !strings.HasPrefix(doc, "{") {
		unescaped, err := url.PathUnescape(doc)
		if err != nil {
			return nil, fmt.Errorf("decode policy document: %w", err)
		}
		doc = unescaped
	}
	var pd policyDocument
	if err := json.Unmarshal([]byte(doc), &pd); err != nil {
		return nil, fmt.Errorf("parse policy document: %w", err)
	}
	return &pd, nil
}

// grantsWildcard reports whether any Allow statement grants every action or
// every resource.
func (d *policyDocument) grantsWildcard() bool {
	for _, s := range d.Statement {
		if s.allows() && (s.Action.contains("*") || s.Resource.contains("*")) {
			return true
		}
	}
	return false
}

// grantsAllActions reports whether any Allow statement grants Action "*".
func (d *policyDocument) grantsAllActions() bool {
	for _, s := range d.Statement {
		if s.allows() && s.Action.contains("*") {
			return true
		}
	}
	return false
}

// openToAnyone reports whether any unconditional Allow statement names the
// wildcard principal.
func (d *policyDocument) openToAnyone() bool {
	for _, s := range d.Statement {
		if s.allows() && s.Principal.anyone() && !s.conditional() {
			return true
		}
	}
	return false
}
