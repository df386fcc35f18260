package hosted

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
)

const (
	slugSuffixLength  = 6
	slugSuffixCharset = "abcdefghijklmnopqrstuvwxyz0123456789"
	maxSlugBaseLength = 48
)

var slugInvalidChars = regexp.MustCompile(`[^a-z0-9]+`)

// makeSlug derives an endpoint slug from a script name: lowercased, runs of
// non-alphanumerics collapsed to single hyphens, plus a random suffix so two
// scripts with the same name get distinct endpoints.
func makeSlug(name string) string {
	base := strings.ToLower(strings.TrimSpace(name))
	base = slugInvalidChars.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-")

	if len(base) > maxSlugBaseLength {
		base = strings.Trim(base[:maxSlugBaseLength], "-")
	}
	if base == "" {
		base = "script"
	}

	return base + "-" + randomSuffix()
}

func randomSuffix() string {
	result := make([]byte, slugSuffixLength)
	charsetLen := big.NewInt(int64(len(slugSuffixCharset)))

	for i := 0; i < slugSuffixLength; i++ {
		num, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			num = big.NewInt(0)
		}
		result[i] = slugSuffixCharset[num.Int64()]
	}

	return string(result)
}
