package core

// InternID is a dense, internal identifier for an image within a database.
// It is strictly 32-bit and always lies in [0, numImages). Internal IDs are
// reassigned on removal (swap-with-last) and never leave the database.
// Used for all hot-path structures (buckets, score vectors).
type InternID uint32

// MaxInternID is the maximum possible value for an InternID.
const MaxInternID = ^InternID(0)

// UserID is the stable, externally meaningful identifier for an image.
// It is unique per image within a database and survives removals of other
// images.
type UserID uint64
