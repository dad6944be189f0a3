package registry

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/DeepDiveOCR/ocr-safesign/internal/models"
)

// amountUnit converts the registry's 만원 figures to 원.
const amountUnit = 10_000

type feedResponse struct {
	XMLName xml.Name `xml:"response"`
	Header  struct {
		ResultCode string `xml:"resultCode"`
		ResultMsg  string `xml:"resultMsg"`
	} `xml:"header"`
	Items []feedItem `xml:"body>items>item"`
}

type feedItem struct {
	SubDistrict   string `xml:"umdNm"`
	LotNumber     string `xml:"jibun"`
	DealAmount    string `xml:"dealAmount"`
	Deposit       string `xml:"deposit"`
	MonthlyRent   string `xml:"monthlyRent"`
	ExclusiveArea string `xml:"excluUseAr"`
	DealYear      string `xml:"dealYear"`
	DealMonth     string `xml:"dealMonth"`
	DealDay       string `xml:"dealDay"`
}

func decodeFeed(body []byte) (*feedResponse, error) {
	var resp feedResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	switch strings.TrimSpace(resp.Header.ResultCode) {
	case "", "00", "000":
		return &resp, nil
	}
	return nil, &resultCodeError{code: resp.Header.ResultCode, msg: resp.Header.ResultMsg}
}

// resultCodeError is a well-formed response in which the registry refused
// the request, e.g. an unregistered service key.
type resultCodeError struct {
	code string
	msg  string
}

func (e *resultCodeError) Error() string {
	return fmt.Sprintf("result code %s: %s", e.code, e.msg)
}

func (it feedItem) matches(subDistrict, lotNumber string) bool {
	return strings.TrimSpace(it.SubDistrict) == subDistrict && strings.TrimSpace(it.LotNumber) == lotNumber
}

// toTransaction converts a row. Rows with missing or unparsable required
// fields report ok=false and are dropped by the caller.
func (it feedItem) toTransaction(kind models.DealKind) (models.Transaction, bool) {
	area, err := strconv.ParseFloat(strings.TrimSpace(it.ExclusiveArea), 64)
	if err != nil || area <= 0 {
		return models.Transaction{}, false
	}
	date, ok := dealDate(it.DealYear, it.DealMonth, it.DealDay)
	if !ok {
		return models.Transaction{}, false
	}

	tx := models.Transaction{Kind: kind, ExclusiveArea: area, DealDate: date}
	switch kind {
	case models.Trade:
		amount, ok := parseAmount(it.DealAmount)
		if !ok {
			return models.Transaction{}, false
		}
		tx.Amount = amount
	case models.Rent:
		deposit, ok := parseAmount(it.Deposit)
		if !ok {
			return models.Transaction{}, false
		}
		tx.Amount = deposit
		if strings.TrimSpace(it.MonthlyRent) != "" {
			rent, ok := parseAmount(it.MonthlyRent)
			if !ok {
				return models.Transaction{}, false
			}
			tx.MonthlyRent = rent
		}
	default:
		return models.Transaction{}, false
	}
	return tx, true
}

// isComparable reports whether a record may be used as a price comparable.
// Rent records count only as pure deposit (전세) deals.
func isComparable(tx models.Transaction) bool {
	if tx.Kind == models.Rent {
		return tx.Amount > 0 && tx.MonthlyRent == 0
	}
	return tx.Amount >= 0
}

func parseAmount(raw string) (int64, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n * amountUnit, true
}

func dealDate(year, month, day string) (time.Time, bool) {
	y, err1 := strconv.Atoi(strings.TrimSpace(year))
	m, err2 := strconv.Atoi(strings.TrimSpace(month))
	d, err3 := strconv.Atoi(strings.TrimSpace(day))
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC), true
}
