package domain

import "fmt"

// Kind names an indexed entity type.
type Kind string

const (
	KindPost Kind = "post"
	KindUser Kind = "user"
)

// Kinds lists every indexed kind.
var Kinds = []Kind{KindPost, KindUser}

// ParseKind accepts singular or plural forms ("post", "posts").
func ParseKind(s string) (Kind, error) {
	switch s {
	case "post", "posts":
		return KindPost, nil
	case "user", "users":
		return KindUser, nil
	default:
		return "", fmt.Errorf("unknown kind %q", s)
	}
}

// Fields returns the declared searchable fields of a kind.
func (k Kind) Fields() []string {
	switch k {
	case KindPost:
		return []string{"title", "body"}
	case KindUser:
		return []string{"username", "email"}
	default:
		return nil
	}
}
