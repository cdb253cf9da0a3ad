package ofx

import (
	"strings"
	"time"

	"github.com/dvloznov/ofx-ingest/internal/domain"
)

const ofxDateLayout = "20060102150405"

var sgmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Encode renders doc as an OFX 1.02 SGML document. Parse(Encode(doc))
// yields a document equal to doc for any doc produced by Parse.
func Encode(doc *Document) string {
	w := &sgmlWriter{}

	w.raw("OFXHEADER:100")
	w.raw("DATA:OFXSGML")
	w.raw("VERSION:102")
	w.raw("SECURITY:NONE")
	w.raw("ENCODING:USASCII")
	w.raw("CHARSET:1252")
	w.raw("COMPRESSION:NONE")
	w.raw("OLDFILEUID:NONE")
	w.raw("NEWFILEUID:NONE")
	w.raw("")

	w.open("OFX")
	w.open("SIGNONMSGSRSV1")
	w.open("SONRS")
	w.status()
	w.date("DTSERVER", doc.Headers.ServerTime)
	lang := doc.Headers.Language
	if lang == "" {
		lang = "POR"
	}
	w.leaf("LANGUAGE", lang)
	if doc.Headers.Org != "" || doc.Headers.FID != "" {
		w.open("FI")
		w.leaf("ORG", doc.Headers.Org)
		w.leaf("FID", doc.Headers.FID)
		w.close("FI")
	}
	w.close("SONRS")
	w.close("SIGNONMSGSRSV1")

	if doc.Kind == KindCreditCard {
		w.open("CREDITCARDMSGSRSV1")
		w.open("CCSTMTTRNRS")
		w.leaf("TRNUID", "1")
		w.status()
		w.open("CCSTMTRS")
		w.leaf("CURDEF", doc.Account.Currency)
		w.open("CCACCTFROM")
		w.leaf("ACCTID", doc.Account.AccountID)
		w.close("CCACCTFROM")
		w.transactions(doc)
		w.balance(doc.Balance)
		w.close("CCSTMTRS")
		w.close("CCSTMTTRNRS")
		w.close("CREDITCARDMSGSRSV1")
	} else {
		w.open("BANKMSGSRSV1")
		w.open("STMTTRNRS")
		w.leaf("TRNUID", "1")
		w.status()
		w.open("STMTRS")
		w.leaf("CURDEF", doc.Account.Currency)
		w.open("BANKACCTFROM")
		w.leaf("BANKID", doc.Account.BankID)
		w.leaf("BRANCHID", doc.Account.BranchID)
		w.leaf("ACCTID", doc.Account.AccountID)
		w.leaf("ACCTTYPE", doc.Account.AccountType)
		w.close("BANKACCTFROM")
		w.transactions(doc)
		w.balance(doc.Balance)
		w.close("STMTRS")
		w.close("STMTTRNRS")
		w.close("BANKMSGSRSV1")
	}

	w.close("OFX")
	return w.sb.String()
}

type sgmlWriter struct {
	sb strings.Builder
}

func (w *sgmlWriter) raw(line string) {
	w.sb.WriteString(line)
	w.sb.WriteString("\r\n")
}

func (w *sgmlWriter) open(tag string)  { w.raw("<" + tag + ">") }
func (w *sgmlWriter) close(tag string) { w.raw("</" + tag + ">") }

// leaf writes an unterminated SGML element. Empty values are skipped: an
// element without character data cannot be auto-closed by the reader.
func (w *sgmlWriter) leaf(tag, value string) {
	if value == "" {
		return
	}
	w.raw("<" + tag + ">" + sgmlEscaper.Replace(value))
}

func (w *sgmlWriter) date(tag string, t time.Time) {
	if t.IsZero() {
		return
	}
	w.leaf(tag, t.UTC().Format(ofxDateLayout))
}

func (w *sgmlWriter) status() {
	w.open("STATUS")
	w.leaf("CODE", "0")
	w.leaf("SEVERITY", "INFO")
	w.close("STATUS")
}

func (w *sgmlWriter) transactions(doc *Document) {
	if len(doc.Items) == 0 && doc.Period.Start.IsZero() && doc.Period.End.IsZero() {
		return
	}
	w.open("BANKTRANLIST")
	w.date("DTSTART", doc.Period.Start)
	w.date("DTEND", doc.Period.End)
	for _, it := range doc.Items {
		w.open("STMTTRN")
		typeCode := it.TypeCode
		if typeCode == "" {
			typeCode = "DEBIT"
			if it.Direction == domain.DirectionCredit {
				typeCode = "CREDIT"
			}
		}
		w.leaf("TRNTYPE", typeCode)
		w.date("DTPOSTED", it.PostedAt)
		w.leaf("TRNAMT", it.Amount.String())
		w.leaf("FITID", it.ExternalID)
		w.leaf("CHECKNUM", it.CheckNumber)
		w.leaf("REFNUM", it.ReferenceNumber)
		w.leaf("NAME", it.PayeeName)
		w.leaf("MEMO", it.Memo)
		w.close("STMTTRN")
	}
	w.close("BANKTRANLIST")
}

func (w *sgmlWriter) balance(b Balance) {
	if b.Amount.IsZero() && b.AsOf.IsZero() {
		return
	}
	w.open("LEDGERBAL")
	w.leaf("BALAMT", b.Amount.String())
	w.date("DTASOF", b.AsOf)
	w.close("LEDGERBAL")
}
