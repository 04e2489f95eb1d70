// Package redis implements the task collection on Redis.
//
// A collection named c under prefix p uses these keys:
//
//	p:c:seq      counter for document ids (INCR)
//	p:c:doc:<id> hash with the document fields
//	p:c:ids      sorted set of ids, scored by id
//	p:c:uuid     hash from uuid to id
package redis
