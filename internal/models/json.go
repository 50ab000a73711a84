package models

import (
	"database/sql/driver"
	"encoding/json"
)

// JSON 通用 JSON 字段（网关配置、原始回调报文）
type JSON map[string]interface{}

// Value 实现 driver.Valuer 接口
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan 实现 sql.Scanner 接口
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSON)
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	if len(bytes) == 0 {
		*j = make(JSON)
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// GetString 读取字符串字段
func (j JSON) GetString(key string) string {
	if j == nil {
		return ""
	}
	if value, ok := j[key].(string); ok {
		return value
	}
	return ""
}
