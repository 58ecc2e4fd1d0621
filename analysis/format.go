package analysis

import (
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/dhamidi/thriftls/thrift/format"
)

const FormatCacheName = "format"

type formatted struct {
	source string
	text   string
}

func (f *formatted) Size() int {
	return len(f.source) + len(f.text)
}

// Format returns the formatted text of content. Results are cached by
// content, so identical documents share an entry.
func (e *Engine) Format(content string) string {
	key := strconv.FormatUint(xxhash.Sum64String(content), 16)
	v, ok := e.Manager.GetIf(FormatCacheName, key, func(v any) bool {
		return v.(*formatted).source == content
	})
	if ok {
		return v.(*formatted).text
	}

	text := format.Source(content)
	if err := e.Manager.Set(FormatCacheName, key, &formatted{source: content, text: text}); err != nil {
		log.Errorf("cache formatted text: %s", err)
	}
	return text
}
