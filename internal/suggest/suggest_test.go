package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jizhang/internal/core"
)

func TestPrompt(t *testing.T) {
	got := Prompt("星巴克拿铁")
	want := "请根据以下费用描述，从以下类别中选择一个最合适的费用类别：餐饮、交通、购物、账单、娱乐、健康、日用、其他。\n\n费用描述：星巴克拿铁\n\n建议类别："
	assert.Equal(t, want, got)
}

func TestParseAnswer(t *testing.T) {
	cases := map[string]core.Category{
		`{"category": "交通"}`:              core.CategoryTransport,
		"```json\n{\"category\":\"账单\"}\n```": core.CategoryBills,
		`"娱乐"`:                           core.CategoryEntertainment,
		"餐饮。":                            core.CategoryFood,
		"建议类别：健康":                        core.CategoryHealthcare,
		"Groceries":                       core.CategoryGroceries,
		`{"建议类别": "购物"}`:                  core.CategoryShopping,
		"宠物":                             core.Category("宠物"),
	}
	for in, want := range cases {
		assert.Equal(t, want, parseAnswer(in), "parseAnswer(%q)", in)
	}
}

func TestKeywordSuggester(t *testing.T) {
	k := NewKeywordSuggester()
	cases := map[string]core.Category{
		"和同事吃午饭":       core.CategoryFood,
		"地铁充值":         core.CategoryTransport,
		"Netflix 会员":   core.CategoryEntertainment,
		"交电费":          core.CategoryBills,
		"超市买纸巾":        core.CategoryGroceries,
		"京东买鞋":         core.CategoryShopping,
		"药店买感冒药":       core.CategoryHealthcare,
		"something odd": core.CategoryOther,
	}
	for desc, want := range cases {
		got, err := k.Suggest(context.Background(), desc)
		require.NoError(t, err)
		assert.Equal(t, want, got, "Suggest(%q)", desc)
	}
}

func TestServiceFallsBackToOther(t *testing.T) {
	svc := NewService(SuggesterFunc(func(context.Context, string) (core.Category, error) {
		return "", errors.New("quota exceeded")
	}), Options{})
	assert.Equal(t, core.CategoryOther, svc.SuggestCategory(context.Background(), "午饭"))
}

func TestServiceUsesFallbackSuggester(t *testing.T) {
	svc := NewService(SuggesterFunc(func(context.Context, string) (core.Category, error) {
		return "", errors.New("offline")
	}), Options{Fallback: NewKeywordSuggester()})
	assert.Equal(t, core.CategoryFood, svc.SuggestCategory(context.Background(), "午饭"))
}

func TestServiceNormalizesUnknownLabels(t *testing.T) {
	svc := NewService(SuggesterFunc(func(context.Context, string) (core.Category, error) {
		return "宠物", nil
	}), Options{})
	assert.Equal(t, core.CategoryOther, svc.SuggestCategory(context.Background(), "猫粮"))
}

func TestServiceEmptyDescription(t *testing.T) {
	var calls atomic.Int32
	svc := NewService(SuggesterFunc(func(context.Context, string) (core.Category, error) {
		calls.Add(1)
		return core.CategoryFood, nil
	}), Options{})
	assert.Equal(t, core.CategoryOther, svc.SuggestCategory(context.Background(), "   "))
	assert.Zero(t, calls.Load())
}

func TestServiceCachesAnswers(t *testing.T) {
	var calls atomic.Int32
	svc := NewService(SuggesterFunc(func(context.Context, string) (core.Category, error) {
		calls.Add(1)
		return core.CategoryTransport, nil
	}), Options{})

	ctx := context.Background()
	assert.Equal(t, core.CategoryTransport, svc.SuggestCategory(ctx, "打车 回家"))
	assert.Equal(t, core.CategoryTransport, svc.SuggestCategory(ctx, "  打车   回家 "))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, svc.Cache().Size())
}

func TestServiceDoesNotCacheFailures(t *testing.T) {
	var calls atomic.Int32
	svc := NewService(SuggesterFunc(func(context.Context, string) (core.Category, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("transient")
		}
		return core.CategoryBills, nil
	}), Options{})

	ctx := context.Background()
	assert.Equal(t, core.CategoryOther, svc.SuggestCategory(ctx, "电费"))
	assert.Equal(t, core.CategoryBills, svc.SuggestCategory(ctx, "电费"))
}

func TestServiceCollapsesConcurrentRequests(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	svc := NewService(SuggesterFunc(func(context.Context, string) (core.Category, error) {
		calls.Add(1)
		<-release
		return core.CategoryFood, nil
	}), Options{})

	var wg sync.WaitGroup
	results := make([]core.Category, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.SuggestCategory(context.Background(), "火锅")
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, core.CategoryFood, r)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestServiceCancellation(t *testing.T) {
	svc := NewService(SuggesterFunc(func(ctx context.Context, _ string) (core.Category, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Second):
			return core.CategoryFood, nil
		}
	}), Options{Timeout: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.Equal(t, core.CategoryOther, svc.SuggestCategory(ctx, "咖啡"))
	assert.Less(t, time.Since(start), time.Second)

	// The provider timeout also degrades to Other.
	assert.Equal(t, core.CategoryOther, svc.SuggestCategory(context.Background(), "奶茶"))
}

func geminiServer(t *testing.T, handler http.HandlerFunc) *GeminiSuggester {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g, err := NewGeminiSuggester(context.Background(), GeminiConfig{
		APIKey:     "test-key",
		Model:      "gemini-test",
		Endpoint:   srv.URL + "/",
		Attempts:   3,
		RetryDelay: time.Millisecond,
	})
	require.NoError(t, err)
	return g
}

func candidates(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{"parts": []any{map[string]any{"text": text}}},
		}},
	})
	return string(b)
}

func TestGeminiSuggester(t *testing.T) {
	var gotKey, gotPath, gotBody string
	g := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, candidates(`{"category":"餐饮"}`))
	})

	c, err := g.Suggest(context.Background(), "麦当劳")
	require.NoError(t, err)
	assert.Equal(t, core.CategoryFood, c)
	assert.Equal(t, "test-key", gotKey)
	assert.True(t, strings.HasSuffix(gotPath, "models/gemini-test:generateContent"), gotPath)
	assert.Contains(t, gotBody, "麦当劳")
	assert.Contains(t, gotBody, "application/json")
}

func TestGeminiSuggesterRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	g := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			io.WriteString(w, `{"error":{"code":429,"message":"slow down"}}`)
			return
		}
		io.WriteString(w, candidates("交通"))
	})

	c, err := g.Suggest(context.Background(), "打车")
	require.NoError(t, err)
	assert.Equal(t, core.CategoryTransport, c)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGeminiSuggesterDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	g := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"code":400,"message":"bad request"}}`)
	})

	_, err := g.Suggest(context.Background(), "打车")
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGeminiSuggesterEmptyCandidates(t *testing.T) {
	g := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"candidates":[]}`)
	})
	_, err := g.Suggest(context.Background(), "打车")
	assert.ErrorIs(t, err, errEmptyAnswer)
}

func TestNewGeminiSuggesterRequiresKey(t *testing.T) {
	_, err := NewGeminiSuggester(context.Background(), GeminiConfig{Model: "m"})
	assert.Error(t, err)
}
