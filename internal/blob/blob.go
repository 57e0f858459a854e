// Package blob is the opaque object store for face images and event evidence.
// Objects are addressed as {bucket}/{opaque-path}; retention is expressed in days per bucket.
package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// Bucket selects the logical category of an object.
type Bucket string

const (
	BucketLPREvidence  Bucket = "lpr-evidence"
	BucketFaceEvidence Bucket = "face-evidence"
	BucketFaces        Bucket = "faces"
)

// Buckets lists every known bucket.
var Buckets = []Bucket{BucketLPREvidence, BucketFaceEvidence, BucketFaces}

// Key addresses one object.
type Key struct {
	Bucket Bucket
	Path   string
}

// String renders the key as {bucket}/{path}.
func (k Key) String() string {
	return string(k.Bucket) + "/" + k.Path
}

// ParseKey splits a {bucket}/{path} string.
func ParseKey(s string) (Key, error) {
	bucket, path, ok := strings.Cut(s, "/")
	if !ok || bucket == "" || path == "" {
		return Key{}, fmt.Errorf("invalid object key %q", s)
	}
	return Key{Bucket: Bucket(bucket), Path: path}, nil
}

// Object is a stored blob.
type Object struct {
	Key         Key
	Data        []byte
	ContentType string
	CreatedAt   time.Time
}

// Store is the blob store contract.
type Store interface {
	Put(ctx context.Context, key Key, data []byte, contentType string) error
	Get(ctx context.Context, key Key) (*Object, error)
	Exists(ctx context.Context, key Key) (bool, error)
	Delete(ctx context.Context, key Key) error
}

// Retention holds the lifecycle policy, in days per bucket. Zero disables expiry.
type Retention map[Bucket]int

// Cutoff returns the creation time before which objects of bucket expire.
func (r Retention) Cutoff(bucket Bucket, now time.Time) (time.Time, bool) {
	days := r[bucket]
	if days <= 0 {
		return time.Time{}, false
	}
	return now.AddDate(0, 0, -days), true
}
