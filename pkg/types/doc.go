// Package types defines the record kinds, handles, embedded structures,
// change events, and standard errors shared by the Closet datastore, its
// XML codec, and the privacy filter.
//
// Every primary record (Textile, Ensemble, MediaObject, Note, Tag) embeds an
// Object carrying its handle, user ID, privacy flag, and change timestamp.
// Records reference each other only by Handle.
package types
