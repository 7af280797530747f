package graph

import (
	"encoding/json"
	"fmt"

	"github.com/Meesho/BharatMLStack/choreographer/internal/data/models"
	"github.com/spaolacci/murmur3"
)

// Fingerprint hashes the canonical form of a dependency map. Two seeds of
// the same graph always agree; a different graph under the same workflow id
// does not.
func Fingerprint(start string, deps map[string]models.Deps) string {
	// encoding/json sorts map keys and the dep lists are already sorted.
	canonical, _ := json.Marshal(struct {
		Start string                 `json:"start"`
		Deps  map[string]models.Deps `json:"deps"`
	}{Start: start, Deps: deps})

	h128 := murmur3.New128()
	_, _ = h128.Write(canonical)
	hi, lo := h128.Sum128()
	return fmt.Sprintf("%016x%016x", hi, lo)
}
