// Package state persists the updater's bookkeeping as a small key/value
// record.
//
// All reads and writes go through transactions: View for reads, Update for
// read-modify-write. An Update is durable once it returns nil, and a
// function that returns an error leaves the store untouched. Two backends
// are provided: a JSON file (the default) and Badger.
package state
