package providers

import (
	"github.com/samber/do/v2"

	"github.com/inkwellapp/inkwell-server/internal/auth"
)

// ProvideHasher provides the argon2id password hasher with default parameters.
func ProvideHasher(i do.Injector) (*auth.Hasher, error) {
	return auth.NewHasher(auth.Params{}), nil
}
