package ofx

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// scanDocument reads a statement by locating tags directly, without checking
// the aggregate structure. It covers bodies ofxgo refuses to decode, such as
// comma decimal separators or elements out of order. cause is the decoder
// error, reported when the body is not OFX at all.
func scanDocument(body string, headers Headers, cause error) (*Document, error) {
	start := strings.Index(body, "<OFX>")
	if start < 0 {
		return nil, &MalformedDocumentError{Reason: "cannot tokenize body", Err: cause}
	}
	body = body[start:]

	signon, ok := section(body, "SONRS")
	if !ok {
		return nil, &MalformedDocumentError{Reason: "missing signon section", Err: cause}
	}
	fi, _ := section(signon, "FI")
	headers.Org = tagValue(fi, "ORG")
	headers.FID = tagValue(fi, "FID")
	headers.Language = tagValue(signon, "LANGUAGE")
	headers.ServerTime = scanDate(tagValue(signon, "DTSERVER"))

	doc := &Document{Headers: headers}

	var stmt string
	if s, ok := section(body, "STMTRS"); ok {
		stmt = s
		acct, _ := section(stmt, "BANKACCTFROM")
		doc.Kind = KindBank
		doc.Account = AccountInfo{
			BankID:      tagValue(acct, "BANKID"),
			BranchID:    tagValue(acct, "BRANCHID"),
			AccountID:   tagValue(acct, "ACCTID"),
			AccountType: strings.ToUpper(tagValue(acct, "ACCTTYPE")),
		}
	} else if s, ok := section(body, "CCSTMTRS"); ok {
		stmt = s
		acct, _ := section(stmt, "CCACCTFROM")
		doc.Kind = KindCreditCard
		doc.Account = AccountInfo{
			AccountID:   tagValue(acct, "ACCTID"),
			AccountType: CreditCardAccountType,
		}
	} else {
		return nil, &MalformedDocumentError{Reason: "no bank or credit-card statement found", Err: cause}
	}

	doc.Account.Currency = DefaultCurrency
	if cur := strings.ToUpper(tagValue(stmt, "CURDEF")); cur != "" && cur != "XXX" {
		doc.Account.Currency = cur
	}

	var err error
	doc.Balance, err = scanBalance(stmt)
	if err != nil {
		return nil, err
	}

	if list, ok := section(stmt, "BANKTRANLIST"); ok {
		doc.Period = Period{
			Start: scanDate(tagValue(list, "DTSTART")),
			End:   scanDate(tagValue(list, "DTEND")),
		}
		doc.Items, err = scanItems(list)
		if err != nil {
			return nil, err
		}
	}

	fillBankID(doc)
	return doc, nil
}

// scanBalance prefers LEDGERBAL and falls back to AVAILBAL when the ledger
// amount is missing or zero.
func scanBalance(stmt string) (Balance, error) {
	var bal Balance

	if ledger, ok := section(stmt, "LEDGERBAL"); ok {
		amount, err := scanAmount(tagValue(ledger, "BALAMT"))
		if err != nil {
			return Balance{}, &MalformedDocumentError{Reason: "ledger balance", Err: err}
		}
		bal = Balance{Amount: amount, AsOf: scanDate(tagValue(ledger, "DTASOF"))}
	}

	if avail, ok := section(stmt, "AVAILBAL"); ok && bal.Amount.IsZero() {
		amount, err := scanAmount(tagValue(avail, "BALAMT"))
		if err != nil {
			return Balance{}, &MalformedDocumentError{Reason: "available balance", Err: err}
		}
		bal.Amount = amount
		if bal.AsOf.IsZero() {
			bal.AsOf = scanDate(tagValue(avail, "DTASOF"))
		}
	}

	return bal, nil
}

func scanItems(list string) ([]Item, error) {
	blocks := strings.Split(list, "<STMTTRN>")[1:]
	items := make([]Item, 0, len(blocks))

	for i, block := range blocks {
		if end := strings.Index(block, "</STMTTRN>"); end >= 0 {
			block = block[:end]
		}

		amount, err := scanAmount(tagValue(block, "TRNAMT"))
		if err != nil {
			return nil, &MalformedDocumentError{
				Reason: fmt.Sprintf("transaction %d amount", i),
				Err:    err,
			}
		}
		typeCode := strings.ToUpper(tagValue(block, "TRNTYPE"))

		items = append(items, Item{
			ExternalID:      tagValue(block, "FITID"),
			PostedAt:        scanDate(tagValue(block, "DTPOSTED")),
			Amount:          amount,
			Direction:       DirectionOf(amount, typeCode),
			TypeCode:        typeCode,
			Memo:            CleanText(tagValue(block, "MEMO")),
			PayeeName:       CleanText(tagValue(block, "NAME")),
			CheckNumber:     tagValue(block, "CHECKNUM"),
			ReferenceNumber: tagValue(block, "REFNUM"),
		})
	}

	return items, nil
}

// section returns the text between <tag> and </tag>, or up to the end of s
// when the closing tag is missing.
func section(s, tag string) (string, bool) {
	open := "<" + tag + ">"
	i := strings.Index(s, open)
	if i < 0 {
		return "", false
	}
	rest := s[i+len(open):]
	if j := strings.Index(rest, "</"+tag+">"); j >= 0 {
		rest = rest[:j]
	}
	return rest, true
}

var entityUnescaper = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")

// tagValue returns the character data following the first <tag> in s. SGML
// leaf elements have no closing tag, so the value ends at the next '<'.
func tagValue(s, tag string) string {
	open := "<" + tag + ">"
	i := strings.Index(s, open)
	if i < 0 {
		return ""
	}
	rest := s[i+len(open):]
	if j := strings.IndexByte(rest, '<'); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(entityUnescaper.Replace(rest))
}

// scanAmount accepts a dot or a comma as the decimal separator. When both
// appear, the dot is taken as a thousands separator.
func scanAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimPrefix(strings.ReplaceAll(strings.TrimSpace(s), " ", ""), "+")
	if s == "" {
		return decimal.Zero, nil
	}
	if strings.Contains(s, ",") {
		if strings.Contains(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
		}
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Round(amountScale), nil
}

// ofxDate matches YYYYMMDD[HHMMSS[.XXX]][[gmt offset[:tz name]]].
var ofxDate = regexp.MustCompile(`^(\d{8})(\d{6})?(?:\.\d+)?(?:\[([+-]?\d+(?:\.\d+)?)(?::[^\]]*)?\])?`)

// scanDate parses an OFX date into UTC. Dates without an offset are taken as
// UTC. Unreadable dates yield the zero time.
func scanDate(s string) time.Time {
	m := ofxDate.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return time.Time{}
	}

	loc := time.UTC
	if m[3] != "" {
		if hours, err := strconv.ParseFloat(m[3], 64); err == nil {
			loc = time.FixedZone("", int(hours*3600))
		}
	}

	layout, value := "20060102", m[1]
	if m[2] != "" {
		layout, value = ofxDateLayout, m[1]+m[2]
	}
	t, err := time.ParseInLocation(layout, value, loc)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
