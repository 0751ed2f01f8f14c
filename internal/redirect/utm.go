package redirect

import (
	"net/url"

	"github.com/ignite/promo-gateway/internal/domain"
)

// MergeDestination builds the final Location for a redirect. Query
// parameters merge in three layers, lowest precedence first:
//
//  1. parameters already on the destination URL
//  2. the entry's default UTM parameters
//  3. UTM parameters on the incoming request
//
// so a visitor arriving from a newsletter link keeps their attribution
// over whatever the entry would have stamped. Non-UTM request
// parameters pass through only when the destination does not define
// them itself; an affiliate id baked into the destination can never be
// overridden from the address bar. The destination's fragment survives
// the merge.
func MergeDestination(dest string, defaults domain.UTMParams, incoming url.Values) (string, error) {
	u, err := url.Parse(dest)
	if err != nil {
		return "", err
	}

	q := u.Query()

	for key, vals := range defaults.Values() {
		if len(vals) > 0 {
			q.Set(key, vals[0])
		}
	}

	for key, vals := range incoming {
		if len(vals) == 0 || vals[0] == "" {
			continue
		}
		if domain.IsUTMKey(key) {
			q.Set(key, vals[0])
			continue
		}
		if !q.Has(key) {
			q.Set(key, vals[0])
		}
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}
