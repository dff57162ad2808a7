package workset

import (
	"strings"

	"golang.org/x/text/cases"
)

// DefaultPageSize 默认每页条数
const DefaultPageSize = 10

// Filter 保留任意字段的字符串形式包含 term 的记录，大小写不敏感，term 为空时全部保留
func Filter(records []Record, term string) []Record {
	if term == "" {
		return records
	}
	caser := cases.Fold()
	folded := caser.String(term)

	var result []Record
	for _, record := range records {
		for _, value := range record {
			if value == nil {
				continue
			}
			if strings.Contains(caser.String(Stringify(value)), folded) {
				result = append(result, record)
				break
			}
		}
	}
	return result
}

// Page 分页结果，页码从 1 开始
type Page struct {
	Records    []Record `json:"records"`
	Page       int      `json:"page"`
	PageSize   int      `json:"pageSize"`
	TotalPages int      `json:"totalPages"`
	Total      int      `json:"total"`
}

func TotalPages(total int, pageSize int) int {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return (total + pageSize - 1) / pageSize
}

// Paginate 返回 [(page-1)*size, page*size) 区间，页码越界时返回空页，不做修正
func Paginate(records []Record, page int, pageSize int) Page {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	result := Page{
		Page:       page,
		PageSize:   pageSize,
		Total:      len(records),
		TotalPages: TotalPages(len(records), pageSize),
		Records:    []Record{},
	}
	if page < 1 {
		return result
	}
	start := (page - 1) * pageSize
	if start >= len(records) {
		return result
	}
	end := start + pageSize
	if end > len(records) {
		end = len(records)
	}
	result.Records = records[start:end]
	return result
}

// ClampPage 把页码修正到 [1, totalPages]，没有数据时为 1
func ClampPage(page int, totalPages int) int {
	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}
	return page
}
