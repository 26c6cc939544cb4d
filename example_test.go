package imagedb_test

import (
	"context"
	"fmt"

	"github.com/hupe1980/imagedb"
	"github.com/hupe1980/imagedb/signature"
)

func Example() {
	ctx := context.Background()
	db := imagedb.New()

	// Signatures normally come from ExtractFile; build a toy one here.
	var sig signature.Signature
	for c := 0; c < signature.Channels; c++ {
		for i := 0; i < signature.NumCoefs; i++ {
			sig[c][i] = int16(i + 1)
		}
	}

	uid, err := db.Add(ctx, imagedb.Image{
		UserID: 1,
		Sig:    sig,
		DC:     signature.DCTriple{120.5, 2.1, -3.4},
		Res:    signature.Resolution{Width: 800, Height: 600},
	})
	if err != nil {
		panic(err)
	}

	results := db.Query(ctx, imagedb.QueryParams{
		Probe: signature.Descriptor{Sig: sig, DC: signature.DCTriple{120.5, 2.1, -3.4}},
		K:     1,
	})

	fmt.Println(uid, results[0].UserID)
	// Output: 1 1
}
