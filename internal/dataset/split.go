package dataset

import (
	"fmt"
	"math"
	"math/rand"
)

// Split shuffles the set with the given seed and holds out a validation
// fraction. The validation size is ceil(n * valFraction); the rest is training
// data. The same seed always yields the same split.
func Split(set *Set, valFraction float64, seed int64) (train, val *Set, err error) {
	if valFraction < 0 || valFraction >= 1 {
		return nil, nil, fmt.Errorf("validation fraction must be in [0, 1), got %g", valFraction)
	}
	n := set.Len()
	nVal := int(math.Ceil(float64(n) * valFraction))
	if nVal >= n {
		return nil, nil, fmt.Errorf("cannot hold out %d of %d samples", nVal, n)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return set.Subset(perm[nVal:]), set.Subset(perm[:nVal]), nil
}
