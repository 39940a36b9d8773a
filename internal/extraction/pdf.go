package extraction

import (
	"bytes"
	"fmt"

	"github.com/dslipak/pdf"
)

// PageReader 将 PDF 拆分为逐页文本
type PageReader interface {
	Pages(data []byte) ([]string, error)
}

// TextPageReader 基于 dslipak/pdf 的纯文本读取
type TextPageReader struct{}

// Pages 返回每页的纯文本，无法解析的页面为空字符串
func (TextPageReader) Pages(data []byte) (pages []string, err error) {
	// 损坏的 PDF 可能导致解析库 panic
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("解析 PDF 失败: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("打开 PDF 失败: %w", err)
	}

	n := r.NumPage()
	if n == 0 {
		return nil, fmt.Errorf("PDF 没有页面")
	}
	pages = make([]string, n)
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages[i-1] = text
	}
	return pages, nil
}
