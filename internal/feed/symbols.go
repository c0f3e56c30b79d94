package feed

import "strings"

var yahooSymbols = map[string]string{
	"BTCUSD": "BTC-USD",
	"ETHUSD": "ETH-USD",
	"XAUUSD": "GC=F",
	"EURUSD": "EURUSD=X",
	"GBPUSD": "GBPUSD=X",
	"USDJPY": "JPY=X",
	"SPX":    "^GSPC",
	"NDX":    "^NDX",
	"DJI":    "^DJI",
}

var binanceSymbols = map[string]string{
	"BTCUSD":  "btcusdt",
	"ETHUSD":  "ethusdt",
	"BNBUSD":  "bnbusdt",
	"ADAUSD":  "adausdt",
	"SOLUSD":  "solusdt",
	"XRPUSD":  "xrpusdt",
	"DOGEUSD": "dogeusdt",
}

// YahooSymbol maps a signal ticker to its Yahoo Finance symbol. Unknown
// tickers pass through unchanged.
func YahooSymbol(ticker string) string {
	if s, ok := yahooSymbols[strings.ToUpper(ticker)]; ok {
		return s
	}
	return ticker
}

// BinanceSymbol maps a signal ticker to its Binance stream name. Unknown
// tickers are lower-cased with a trailing "usd" quoted in "usdt".
func BinanceSymbol(ticker string) string {
	if s, ok := binanceSymbols[strings.ToUpper(ticker)]; ok {
		return s
	}
	s := strings.ToLower(ticker)
	if strings.HasSuffix(s, "usd") {
		s += "t"
	}
	return s
}
