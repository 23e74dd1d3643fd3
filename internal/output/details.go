package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/hitoshi/pelotonexport/internal/model"
)

// TextSanitizer は自由記述テキストからマークアップを除去する。
type TextSanitizer interface {
	SanitizeText(s string) string
}

// Property はフラット化したJSONの1項目。
type Property struct {
	Key   string
	Value string
}

// FlattenJSON はJSONドキュメントをキー順のプロパティ列に展開する。
// オブジェクトは "a.b"、配列は "a[0]" の形式でキーを作る。
// sanitizerがnilでなければ文字列値に適用する。
func FlattenJSON(raw []byte, sanitizer TextSanitizer) ([]Property, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, &model.DeserializationError{What: "workout details", Err: err}
	}

	var props []Property
	flatten("", doc, sanitizer, &props)
	sort.Slice(props, func(i, j int) bool { return props[i].Key < props[j].Key })
	return props, nil
}

func flatten(prefix string, v any, sanitizer TextSanitizer, out *[]Property) {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, child, sanitizer, out)
		}
	case []any:
		for i, child := range val {
			flatten(fmt.Sprintf("%s[%d]", prefix, i), child, sanitizer, out)
		}
	case string:
		if sanitizer != nil {
			val = sanitizer.SanitizeText(val)
		}
		*out = append(*out, Property{Key: prefix, Value: val})
	case json.Number:
		*out = append(*out, Property{Key: prefix, Value: val.String()})
	case bool:
		*out = append(*out, Property{Key: prefix, Value: strconv.FormatBool(val)})
	case nil:
		*out = append(*out, Property{Key: prefix, Value: ""})
	}
}

// WriteDetailsCSV はワークアウト詳細を "property,value" 形式のCSVで書き出す。
// 値にカンマや改行を含みうるため、こちらはencoding/csvでクォートする。
func WriteDetailsCSV(raw []byte, path string, sanitizer TextSanitizer) error {
	props, err := FlattenJSON(raw, sanitizer)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"property", "value"}); err != nil {
		return fsError("write", path, err)
	}
	for _, p := range props {
		if err := w.Write([]string{p.Key, p.Value}); err != nil {
			return fsError("write", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fsError("write", path, err)
	}

	return writeFileAtomic(path, buf.Bytes())
}
