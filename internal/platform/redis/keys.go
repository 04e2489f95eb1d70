package redis

import "strconv"

// keys names the Redis keys of one collection.
type keys struct {
	base string
}

func newKeys(prefix, collection string) keys {
	return keys{base: prefix + ":" + collection}
}

func (k keys) seq() string       { return k.base + ":seq" }
func (k keys) ids() string       { return k.base + ":ids" }
func (k keys) uuids() string     { return k.base + ":uuid" }
func (k keys) docPrefix() string { return k.base + ":doc:" }

func (k keys) doc(id int64) string {
	return k.docPrefix() + strconv.FormatInt(id, 10)
}
