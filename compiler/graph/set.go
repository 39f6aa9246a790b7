package graph

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// SetOf returns a node set holding ids.
func SetOf(ids ...ID) *roaring.Bitmap {
	set := roaring.New()
	for _, id := range ids {
		set.Add(uint32(id))
	}
	return set
}

// IDs returns the members of set in ascending order.
func IDs(set *roaring.Bitmap) []ID {
	if set == nil {
		return nil
	}
	ids := make([]ID, 0, set.GetCardinality())
	it := set.Iterator()
	for it.HasNext() {
		ids = append(ids, ID(it.Next()))
	}
	return ids
}

// EdgeSetOf returns an edge set holding ids.
func EdgeSetOf(ids ...EdgeID) *roaring.Bitmap {
	set := roaring.New()
	for _, id := range ids {
		set.Add(uint32(id))
	}
	return set
}
