package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenCounter为OpenAI-家庭模型改造tiktoken.
type TiktokenCounter struct {
	model    string
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
}

// 模型编码将模型名称映射到其tiktoken编码。
var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4o-mini":   "o200k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

// NewTiktokenCounter为给定型号创建了以tiktoken为主的计数器.
func NewTiktokenCounter(model string) *TiktokenCounter {
	encoding, ok := modelEncodings[model]
	if !ok {
		// 尝试前缀匹配 。
		for prefix, e := range modelEncodings {
			if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
				encoding = e
				ok = true
				break
			}
		}
	}

	if !ok {
		// 默认为 cl100k_base 。
		encoding = "cl100k_base"
	}

	return &TiktokenCounter{
		model:    model,
		encoding: encoding,
	}
}

// init lazily 初始化 tiktoken 编码(可以在第一次使用时下载数据).
func (t *TiktokenCounter) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *TiktokenCounter) Count(text string) (int64, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	tokens := t.enc.Encode(text, nil, nil)
	return int64(len(tokens)), nil
}

func (t *TiktokenCounter) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}

// RegisterTiktokenCounters 为所有已知的 OpenAI 模型注册计数器，
// 并以 "tiktoken" 名称注册默认编码。
func RegisterTiktokenCounters() {
	for model := range modelEncodings {
		Register(model, NewTiktokenCounter(model))
	}
	Register("tiktoken", NewTiktokenCounter("gpt-4"))
}
