// Package imagedb provides an embedded content-based image similarity
// database for Go.
//
// Images are reduced to compact perceptual signatures with a 2D Haar
// wavelet decomposition in YIQ colour space. Signatures are stored in an
// inverted coefficient index and queried by weighted coefficient overlap,
// so a query visits a bounded number of buckets regardless of database
// size. Snapshots are fixed-size binary records, optionally compressed.
//
// # Quick Start
//
// Create a database, add images, query:
//
//	ctx := context.Background()
//	db := imagedb.New()
//
//	id, err := db.AddFile(ctx, "cat.jpg", 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	results, err := db.QueryFile(ctx, "cat-crop.jpg", 5)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, r := range results {
//	    fmt.Printf("%d: %.2f\n", r.UserID, r.Score)
//	}
//
// Persist and reload:
//
//	if err := db.SaveToFile("images.idb"); err != nil {
//	    log.Fatal(err)
//	}
//	db, err = imagedb.NewFromFile("images.idb")
//
// Compressed snapshots:
//
//	db := imagedb.New(imagedb.WithCodec(codec.Zstd{}))
//
// # Concurrency
//
// A DB supports a single writer and many concurrent readers. Queries and
// lookups take a shared lock; Add and Remove take the exclusive lock over
// the whole index.
package imagedb
