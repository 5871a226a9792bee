package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const marketDataPath = "/stock/market-data"

// Market is the t9945 gubun value.
type Market string

const (
	MarketKOSPI  Market = "1"
	MarketKOSDAQ Market = "2"
)

// ETNFilter narrows the list by whether the name marks an ETN.
type ETNFilter int

const (
	ETNAll ETNFilter = iota
	ETNOnly
	ETNExclude
)

// StockItem is one row of the t9945 master list.
type StockItem struct {
	Name      string `json:"hname"`
	ShortCode string `json:"shcode"`
	ExpCode   string `json:"expcode"`
	ETF       string `json:"etfchk"` // "1" for ETFs
	NXT       string `json:"nxt_chk"`
	Filler    string `json:"filler"`
}

// IsETN reports whether the issue name marks an ETN.
func (s StockItem) IsETN() bool {
	return strings.Contains(strings.ToUpper(s.Name), "ETN")
}

// StockListQuery selects and filters the master list.
type StockListQuery struct {
	Market Market
	ETF    string // "" for all, otherwise the exact etfchk value
	ETN    ETNFilter
}

type t9945Request struct {
	InBlock struct {
		Gubun Market `json:"gubun"`
	} `json:"t9945InBlock"`
}

type t9945Response struct {
	RspCd    string      `json:"rsp_cd"`
	RspMsg   string      `json:"rsp_msg"`
	OutBlock []StockItem `json:"t9945OutBlock"`
}

// StockList fetches the stock master list for one market, keyed by short
// code.
func (c *Client) StockList(ctx context.Context, token string, q StockListQuery) (map[string]StockItem, error) {
	if q.Market == "" {
		q.Market = MarketKOSPI
	}

	var in t9945Request
	in.InBlock.Gubun = q.Market

	// LS expects the tr_* header names in lower case.
	header := http.Header{
		"authorization": {"Bearer " + token},
		"tr_cd":         {"t9945"},
		"tr_cont":       {"Y"},
		"tr_cont_key":   {""},
	}

	var out t9945Response
	if err := c.postJSON(ctx, marketDataPath, header, in, &out); err != nil {
		return nil, fmt.Errorf("t9945: %w", err)
	}
	if out.RspCd != "" && out.RspCd != "00000" {
		return nil, &APIError{StatusCode: http.StatusOK, Code: out.RspCd, Message: out.RspMsg}
	}

	items := make(map[string]StockItem, len(out.OutBlock))
	for _, item := range out.OutBlock {
		if q.ETF != "" && item.ETF != q.ETF {
			continue
		}
		switch q.ETN {
		case ETNOnly:
			if !item.IsETN() {
				continue
			}
		case ETNExclude:
			if item.IsETN() {
				continue
			}
		}
		items[item.ShortCode] = item
	}

	c.logger.Debug("fetched stock list",
		"market", q.Market,
		"total", len(out.OutBlock),
		"matched", len(items),
	)
	return items, nil
}
