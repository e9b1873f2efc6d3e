package importer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gut-health-kb/internal/pkg/common"

	"github.com/google/uuid"
)

// FieldError 單一欄位的驗證錯誤
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors 欄位錯誤清單
type FieldErrors []FieldError

// Error 實現 error 介面
func (fe FieldErrors) Error() string {
	parts := make([]string, len(fe))
	for i, e := range fe {
		parts[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return strings.Join(parts, "; ")
}

// Fields 回傳所有出錯的欄位路徑
func (fe FieldErrors) Fields() []string {
	out := make([]string, len(fe))
	for i, e := range fe {
		out[i] = e.Field
	}
	return out
}

// object 以欄位路徑讀取 JSON 物件並累積錯誤
type object struct {
	values map[string]interface{}
	path   string
	errs   *FieldErrors
}

func (o object) at(key string) string {
	if o.path == "" {
		return key
	}
	return o.path + "." + key
}

func (o object) fail(key, format string, args ...interface{}) {
	*o.errs = append(*o.errs, FieldError{Field: o.at(key), Message: fmt.Sprintf(format, args...)})
}

// get 取值，null 視為不存在
func (o object) get(key string) (interface{}, bool) {
	v, ok := o.values[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// text 接受字串，數字則取其原始文字
func text(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	}
	return "", false
}

// number 接受 JSON 數字或可解析為數字的字串
func number(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func (o object) str(key string, required bool, maxLen int) string {
	v, ok := o.get(key)
	if !ok {
		if required {
			o.fail(key, "field required")
		}
		return ""
	}
	s, ok := v.(string)
	if !ok {
		o.fail(key, "must be a string")
		return ""
	}
	if required && strings.TrimSpace(s) == "" {
		o.fail(key, "must not be empty")
		return ""
	}
	if maxLen > 0 && len([]rune(s)) > maxLen {
		o.fail(key, "must be at most %d characters", maxLen)
		return ""
	}
	return s
}

func (o object) float(key string, min, max float64) *float64 {
	v, ok := o.get(key)
	if !ok {
		return nil
	}
	f, ok := number(v)
	if !ok {
		o.fail(key, "must be a number")
		return nil
	}
	if f < min || f > max {
		o.fail(key, "must be between %g and %g", min, max)
		return nil
	}
	return &f
}

// rounded 通過範圍檢查後四捨五入到指定小數位
func (o object) rounded(key string, min, max float64, places int) *float64 {
	f := o.float(key, min, max)
	if f == nil {
		return nil
	}
	r := common.Round(*f, places)
	return &r
}

func (o object) integer(key string, min, max int) *int {
	v, ok := o.get(key)
	if !ok {
		return nil
	}
	f, ok := number(v)
	if !ok || f != float64(int(f)) {
		o.fail(key, "must be an integer")
		return nil
	}
	n := int(f)
	if n < min || n > max {
		o.fail(key, "must be between %d and %d", min, max)
		return nil
	}
	return &n
}

func (o object) boolean(key string) bool {
	v, ok := o.get(key)
	if !ok {
		return false
	}
	b, ok := v.(bool)
	if !ok {
		o.fail(key, "must be a boolean")
		return false
	}
	return b
}

// id 讀取 UUID；present 表示欄位存在（不論是否合法）
func (o object) id(key string) (id uuid.UUID, present bool) {
	v, ok := o.get(key)
	if !ok {
		return uuid.Nil, false
	}
	s, ok := v.(string)
	if !ok {
		o.fail(key, "must be a UUID string")
		return uuid.Nil, true
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		o.fail(key, "invalid UUID")
		return uuid.Nil, true
	}
	return parsed, true
}

// nilUUID 欄位是否明確給了全零 UUID
func (o object) nilUUID(key string) bool {
	v, ok := o.get(key)
	if !ok {
		return false
	}
	s, ok := v.(string)
	if !ok {
		return false
	}
	parsed, err := uuid.Parse(s)
	return err == nil && parsed == uuid.Nil
}

// enum 讀取列舉字串並以 valid 檢查
func (o object) enum(key string, required bool, valid func(string) bool) string {
	s := o.str(key, required, 0)
	if s == "" {
		return ""
	}
	if !valid(s) {
		o.fail(key, "invalid value %q", s)
		return ""
	}
	return s
}

// list 讀取物件陣列區段
func list(root map[string]interface{}, key string, errs *FieldErrors) []object {
	v, ok := root[key]
	if !ok || v == nil {
		return nil
	}
	items, ok := v.([]interface{})
	if !ok {
		*errs = append(*errs, FieldError{Field: key, Message: "must be an array"})
		return nil
	}
	out := make([]object, 0, len(items))
	for i, item := range items {
		path := fmt.Sprintf("%s[%d]", key, i)
		m, ok := item.(map[string]interface{})
		if !ok {
			*errs = append(*errs, FieldError{Field: path, Message: "must be an object"})
			continue
		}
		out = append(out, object{values: m, path: path, errs: errs})
	}
	return out
}
