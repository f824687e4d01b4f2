package bakong

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"khqr-payment-bot/internal/domain"
	"khqr-payment-bot/internal/domain/model"
)

// EMV tag ids used by KHQR.
const (
	tagPayloadFormat    = "00"
	tagPointOfInitiate  = "01"
	tagIndividualAcct   = "29"
	tagMerchantCategory = "52"
	tagCurrency         = "53"
	tagAmount           = "54"
	tagCountry          = "58"
	tagMerchantName     = "59"
	tagMerchantCity     = "60"
	tagAdditionalData   = "62"
	tagCRC              = "63"
	tagTimestamp        = "99"

	subAccountID     = "00"
	subBillNumber    = "01"
	subMobileNumber  = "02"
	subStoreLabel    = "03"
	subTerminalLabel = "07"
	subCreatedAt     = "00"
	subExpiresAt     = "01"

	dynamicQR      = "12"
	defaultMCC     = "5999"
	countryKH      = "KH"
	maxValueLength = 99
	maxNameLength  = 25
	maxCityLength  = 15
)

// Merchant is the static part of every code a merchant presents.
type Merchant struct {
	AccountID     string
	Name          string
	City          string
	StoreLabel    string
	PhoneNumber   string
	TerminalLabel string
}

// Payment is the per-request part of a code.
type Payment struct {
	Amount     model.Money
	BillNumber string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// EncodeKHQR builds a dynamic individual-account KHQR payload ending in its CRC.
func EncodeKHQR(m Merchant, p Payment) (string, error) {
	if m.AccountID == "" || m.Name == "" {
		return "", fmt.Errorf("%w: merchant account and name are required", domain.ErrInvalidArgument)
	}
	if p.Amount.Minor <= 0 {
		return "", domain.ErrNonPositiveAmount
	}
	amount := p.Amount.Decimal()
	if len(amount) > model.MaxAmountLength {
		return "", fmt.Errorf("%w: amount %s exceeds %d characters", domain.ErrInvalidArgument, amount, model.MaxAmountLength)
	}

	var b strings.Builder
	write := func(tag, value string) error {
		if value == "" {
			return nil
		}
		if len(value) > maxValueLength {
			return fmt.Errorf("%w: tag %s value too long", domain.ErrInvalidArgument, tag)
		}
		b.WriteString(tlv(tag, value))
		return nil
	}

	additional := optionalTLV(subBillNumber, p.BillNumber) +
		optionalTLV(subMobileNumber, m.PhoneNumber) +
		optionalTLV(subStoreLabel, m.StoreLabel) +
		optionalTLV(subTerminalLabel, m.TerminalLabel)

	var ts string
	if !p.CreatedAt.IsZero() {
		ts = tlv(subCreatedAt, strconv.FormatInt(p.CreatedAt.UnixMilli(), 10))
		if !p.ExpiresAt.IsZero() {
			ts += tlv(subExpiresAt, strconv.FormatInt(p.ExpiresAt.UnixMilli(), 10))
		}
	}

	fields := [][2]string{
		{tagPayloadFormat, "01"},
		{tagPointOfInitiate, dynamicQR},
		{tagIndividualAcct, tlv(subAccountID, m.AccountID)},
		{tagMerchantCategory, defaultMCC},
		{tagCurrency, p.Amount.Currency.NumericCode()},
		{tagAmount, amount},
		{tagCountry, countryKH},
		{tagMerchantName, truncate(m.Name, maxNameLength)},
		{tagMerchantCity, truncate(m.City, maxCityLength)},
		{tagAdditionalData, additional},
		{tagTimestamp, ts},
	}
	for _, f := range fields {
		if err := write(f[0], f[1]); err != nil {
			return "", err
		}
	}

	b.WriteString(tagCRC + "04")
	body := b.String()
	return body + fmt.Sprintf("%04X", CRC16(body)), nil
}

// MD5 is the hash the Bakong API indexes a code by.
func MD5(payload string) string {
	sum := md5.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// CRC16 is CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF).
func CRC16(s string) uint16 {
	crc := uint16(0xFFFF)
	for i := 0; i < len(s); i++ {
		crc ^= uint16(s[i]) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// VerifyCRC reports whether payload ends with a valid tag 63 checksum.
func VerifyCRC(payload string) bool {
	if len(payload) < 8 || payload[len(payload)-8:len(payload)-4] != tagCRC+"04" {
		return false
	}
	want, err := strconv.ParseUint(payload[len(payload)-4:], 16, 16)
	if err != nil {
		return false
	}
	return CRC16(payload[:len(payload)-4]) == uint16(want)
}

func tlv(tag, value string) string {
	return fmt.Sprintf("%s%02d%s", tag, len(value), value)
}

func optionalTLV(tag, value string) string {
	if value == "" {
		return ""
	}
	return tlv(tag, value)
}

// truncate keeps at most n bytes of s without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	end := 0
	for i, r := range s {
		if i+utf8.RuneLen(r) > n {
			break
		}
		end = i + utf8.RuneLen(r)
	}
	return s[:end]
}
