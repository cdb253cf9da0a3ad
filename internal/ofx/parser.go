package ofx

import (
	"bufio"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aclindsa/ofxgo"
	"github.com/dvloznov/ofx-ingest/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
)

// amountScale bounds the decimal places kept from OFX amounts.
const amountScale = 8

// Parse reads an OFX 1.x (SGML) or 2.x (XML) statement. Missing sections
// produce zero values; a document without a signon section, without any
// statement, or that cannot be tokenized yields a *MalformedDocumentError.
//
// Bodies that are not valid UTF-8 are decoded as Windows-1252, or as
// ISO-8859-1 when the header says so. Documents ofxgo cannot decode are read
// again with a lenient tag scan.
func Parse(raw string) (*Document, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &MalformedDocumentError{Reason: "empty document"}
	}

	headers := scanHeaders(raw)

	body, err := toUTF8(raw, headers)
	if err != nil {
		return nil, &MalformedDocumentError{Reason: "cannot decode charset " + headers.Charset, Err: err}
	}

	// ParseResponse returns the decoded response along with validation
	// errors. Those are ignored: real statements routinely omit required
	// elements.
	resp, err := ofxgo.ParseResponse(strings.NewReader(body))
	if resp == nil {
		return scanDocument(body, headers, err)
	}
	return fromResponse(resp, headers)
}

func fromResponse(resp *ofxgo.Response, headers Headers) (*Document, error) {
	var err error

	headers.Version = resp.Version.String()
	headers.Org = resp.Signon.Org.String()
	headers.FID = resp.Signon.Fid.String()
	headers.Language = resp.Signon.Language.String()
	headers.ServerTime = dateOf(resp.Signon.DtServer)

	doc := &Document{Headers: headers}

	if stmt := firstBankStatement(resp); stmt != nil {
		doc.Kind = KindBank
		doc.Account = AccountInfo{
			BankID:    stmt.BankAcctFrom.BankID.String(),
			BranchID:  stmt.BankAcctFrom.BranchID.String(),
			AccountID: stmt.BankAcctFrom.AcctID.String(),
			Currency:  currencyOf(stmt.CurDef),
		}
		if stmt.BankAcctFrom.AcctType != 0 {
			doc.Account.AccountType = stmt.BankAcctFrom.AcctType.String()
		}
		doc.Balance, err = balanceOf(&stmt.BalAmt, stmt.DtAsOf, stmt.AvailBalAmt, stmt.AvailDtAsOf)
		if err != nil {
			return nil, err
		}
		doc.Period, doc.Items, err = convertList(stmt.BankTranList)
		if err != nil {
			return nil, err
		}
	} else if cc := firstCreditCardStatement(resp); cc != nil {
		doc.Kind = KindCreditCard
		doc.Account = AccountInfo{
			AccountID:   cc.CCAcctFrom.AcctID.String(),
			AccountType: CreditCardAccountType,
			Currency:    currencyOf(cc.CurDef),
		}
		doc.Balance, err = balanceOf(&cc.BalAmt, cc.DtAsOf, cc.AvailBalAmt, cc.AvailDtAsOf)
		if err != nil {
			return nil, err
		}
		doc.Period, doc.Items, err = convertList(cc.BankTranList)
		if err != nil {
			return nil, err
		}
	} else {
		return nil, &MalformedDocumentError{Reason: "no bank or credit-card statement found"}
	}

	fillBankID(doc)
	return doc, nil
}

// Credit-card files and some bank exports carry the clearing code only in FI>FID.
func fillBankID(doc *Document) {
	if doc.Account.BankID == "" {
		doc.Account.BankID = doc.Headers.FID
	}
}

// toUTF8 transcodes single-byte bodies. A body that is already valid UTF-8
// is kept as is even when the header declares CHARSET:1252, since many
// exporters write UTF-8 under that header.
func toUTF8(raw string, h Headers) (string, error) {
	if utf8.ValidString(raw) {
		return raw, nil
	}
	dec := charmap.Windows1252.NewDecoder()
	if strings.Contains(strings.ToUpper(h.Charset+" "+h.Encoding), "8859") {
		dec = charmap.ISO8859_1.NewDecoder()
	}
	return dec.String(raw)
}

func firstBankStatement(resp *ofxgo.Response) *ofxgo.StatementResponse {
	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			return stmt
		}
	}
	return nil
}

func firstCreditCardStatement(resp *ofxgo.Response) *ofxgo.CCStatementResponse {
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			return stmt
		}
	}
	return nil
}

func convertList(list *ofxgo.TransactionList) (Period, []Item, error) {
	if list == nil {
		return Period{}, nil, nil
	}

	period := Period{Start: dateOf(list.DtStart), End: dateOf(list.DtEnd)}
	items := make([]Item, 0, len(list.Transactions))

	for i := range list.Transactions {
		tx := &list.Transactions[i]

		amount, err := amountOf(&tx.TrnAmt)
		if err != nil {
			return Period{}, nil, &MalformedDocumentError{
				Reason: fmt.Sprintf("transaction %d amount", i),
				Err:    err,
			}
		}

		typeCode := ""
		if tx.TrnType != 0 {
			typeCode = tx.TrnType.String()
		}

		items = append(items, Item{
			ExternalID:      strings.TrimSpace(tx.FiTID.String()),
			PostedAt:        dateOf(tx.DtPosted),
			Amount:          amount,
			Direction:       DirectionOf(amount, typeCode),
			TypeCode:        typeCode,
			Memo:            CleanText(tx.Memo.String()),
			PayeeName:       CleanText(tx.Name.String()),
			CheckNumber:     strings.TrimSpace(tx.CheckNum.String()),
			ReferenceNumber: strings.TrimSpace(tx.RefNum.String()),
		})
	}

	return period, items, nil
}

// DirectionOf derives the money flow from the sign of the amount. A zero
// amount falls back to the issuer type code: CREDIT is a credit, anything
// else a debit.
func DirectionOf(amount decimal.Decimal, typeCode string) domain.Direction {
	switch amount.Sign() {
	case 1:
		return domain.DirectionCredit
	case -1:
		return domain.DirectionDebit
	}
	if strings.EqualFold(strings.TrimSpace(typeCode), "CREDIT") {
		return domain.DirectionCredit
	}
	return domain.DirectionDebit
}

// CleanText trims whitespace and strips one pair of enclosing double quotes.
func CleanText(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func amountOf(a *ofxgo.Amount) (decimal.Decimal, error) {
	return decimal.NewFromString(a.Rat.FloatString(amountScale))
}

func balanceOf(ledger *ofxgo.Amount, ledgerAsOf ofxgo.Date, avail *ofxgo.Amount, availAsOf *ofxgo.Date) (Balance, error) {
	amount, err := amountOf(ledger)
	if err != nil {
		return Balance{}, &MalformedDocumentError{Reason: "ledger balance", Err: err}
	}
	asOf := dateOf(ledgerAsOf)

	if amount.IsZero() && avail != nil {
		amount, err = amountOf(avail)
		if err != nil {
			return Balance{}, &MalformedDocumentError{Reason: "available balance", Err: err}
		}
		if availAsOf != nil && asOf.IsZero() {
			asOf = dateOf(*availAsOf)
		}
	}

	return Balance{Amount: amount, AsOf: asOf}, nil
}

func dateOf(d ofxgo.Date) time.Time {
	if d.IsZero() {
		return time.Time{}
	}
	return d.Time.UTC()
}

func currencyOf(c ofxgo.CurrSymbol) string {
	cur := strings.TrimSpace(c.String())
	if cur == "" || cur == "XXX" {
		return DefaultCurrency
	}
	return cur
}

var xmlHeaderAttr = regexp.MustCompile(`([A-Z]+)="([^"]*)"`)

// scanHeaders collects the protocol header fields. OFX 1.x uses KEY:VALUE
// lines before <OFX>; OFX 2.x carries them as attributes of <?OFX ...?>.
func scanHeaders(raw string) Headers {
	fields := make(map[string]string)

	if start := strings.Index(raw, "<?OFX"); start >= 0 {
		if end := strings.Index(raw[start:], "?>"); end > 0 {
			for _, m := range xmlHeaderAttr.FindAllStringSubmatch(raw[start:start+end], -1) {
				fields[m[1]] = m[2]
			}
		}
	} else {
		sc := bufio.NewScanner(strings.NewReader(raw))
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if strings.HasPrefix(line, "<") {
				break
			}
			if key, value, ok := strings.Cut(line, ":"); ok {
				fields[strings.ToUpper(strings.TrimSpace(key))] = strings.TrimSpace(value)
			}
		}
	}

	return Headers{
		OFXHeader: fields["OFXHEADER"],
		Data:      fields["DATA"],
		Version:   fields["VERSION"],
		Security:  fields["SECURITY"],
		Encoding:  fields["ENCODING"],
		Charset:   fields["CHARSET"],
	}
}

// IsMalformed reports whether err is a *MalformedDocumentError.
func IsMalformed(err error) bool {
	var m *MalformedDocumentError
	return errors.As(err, &m)
}
