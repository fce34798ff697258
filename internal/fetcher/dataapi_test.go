package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestDataAPI(baseURL string) *DataAPI {
	return NewDataAPI(DataAPIOptions{
		BaseURL:    baseURL,
		MinFillUSD: 10,
		TakerOnly:  true,
		Timeout:    time.Second,
		UserAgent:  "test",
	}, noopLogger())
}

func TestFetchQueryParameters(t *testing.T) {
	var query map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = map[string]string{}
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	f := newTestDataAPI(srv.URL)
	if _, err := f.Fetch(context.Background(), 500, 1000); err != nil {
		t.Fatalf("空响应不应报错: %v", err)
	}

	if query["limit"] != "500" || query["offset"] != "1000" {
		t.Fatalf("分页参数不正确: %#v", query)
	}
	if query["takerOnly"] != "true" {
		t.Fatalf("应请求 takerOnly=true: %#v", query)
	}
	if query["filterType"] != "CASH" || query["filterAmount"] != "10" {
		t.Fatalf("服务端过滤参数不正确: %#v", query)
	}
}

func TestFetchDecodesStringAndNumberFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// price 为字符串, size 为数字, 两种形态都要能解析
		_, _ = w.Write([]byte(`[
			{"price": "0.42", "size": 1000, "timestamp": 1700000000,
			 "proxyWallet": "0x95222290dd7278aa3ddd389cc1e1d165cc4bafe5",
			 "conditionId": "0xc1", "side": "buy", "outcomeIndex": "1.0",
			 "outcome": "Yes", "transactionHash": "0xdead",
			 "title": "Will it happen", "eventSlug": "will-it", "name": "whale"}
		]`))
	}))
	defer srv.Close()

	trades, err := newTestDataAPI(srv.URL).Fetch(context.Background(), 500, 0)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("期望 1 条, 实际 %d", len(trades))
	}

	tr := trades[0]
	if !tr.Price.Equal(decimal.RequireFromString("0.42")) {
		t.Fatalf("price 解析错误: %s", tr.Price)
	}
	if !tr.Size.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("size 解析错误: %s", tr.Size)
	}
	if tr.Side != "BUY" {
		t.Fatalf("side 应归一为大写: %s", tr.Side)
	}
	if tr.Outcome != 1 {
		t.Fatalf("outcomeIndex \"1.0\" 应解析为 1, 实际 %d", tr.Outcome)
	}
	if tr.Trader == "" || tr.Trader[:2] != "0x" {
		t.Fatalf("trader 地址未归一化: %s", tr.Trader)
	}
	if tr.TraderName != "whale" {
		t.Fatalf("应优先使用 name 字段: %s", tr.TraderName)
	}
}

func TestFetchMillisecondTimestampNormalized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"price": "0.5", "size": "10", "timestamp": 1700000000000,
			 "proxyWallet": "0x1", "conditionId": "0xc1", "side": "BUY"},
			{"price": "0.5", "size": "10", "timestamp": "1700000000",
			 "proxyWallet": "0x1", "conditionId": "0xc1", "side": "BUY"}
		]`))
	}))
	defer srv.Close()

	trades, err := newTestDataAPI(srv.URL).Fetch(context.Background(), 500, 0)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	// 毫秒与秒两种输入应落在同一单位
	if trades[0].Timestamp != 1700000000 || trades[1].Timestamp != 1700000000 {
		t.Fatalf("时间戳应统一为秒: %d, %d", trades[0].Timestamp, trades[1].Timestamp)
	}
}

func TestFetchMalformedFieldsDefaultToZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"price": "not-a-number", "size": null, "timestamp": "garbage",
			 "proxyWallet": "0x1", "conditionId": "0xc1", "side": "BUY",
			 "transactionHash": "0xbad"}
		]`))
	}))
	defer srv.Close()

	trades, err := newTestDataAPI(srv.URL).Fetch(context.Background(), 500, 0)
	if err != nil {
		t.Fatalf("单字段损坏不应丢弃整页: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("损坏字段应保留记录并置零, 实际 %d 条", len(trades))
	}
	tr := trades[0]
	if !tr.Price.IsZero() || !tr.Size.IsZero() || tr.Timestamp != 0 {
		t.Fatalf("损坏字段应置零: price=%s size=%s ts=%d", tr.Price, tr.Size, tr.Timestamp)
	}
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"errorType": "bad"})
	}))
	defer srv.Close()

	if _, err := newTestDataAPI(srv.URL).Fetch(context.Background(), 500, 0); err == nil {
		t.Fatal("HTTP 400 应返回错误")
	}
}

func TestFetchMakerFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"price": "0.5", "size": "10", "timestamp": 1700000000,
			 "maker": "0x95222290dd7278aa3ddd389cc1e1d165cc4bafe5",
			 "conditionId": "0xc1", "side": "BUY", "pseudonym": "Quiet-Otter"}
		]`))
	}))
	defer srv.Close()

	trades, err := newTestDataAPI(srv.URL).Fetch(context.Background(), 500, 0)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if trades[0].Trader == "" {
		t.Fatal("proxyWallet 缺失时应回退到 maker")
	}
	if trades[0].TraderName != "Quiet-Otter" {
		t.Fatalf("name 缺失时应回退到 pseudonym: %s", trades[0].TraderName)
	}
}
