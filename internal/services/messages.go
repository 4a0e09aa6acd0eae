package recycle

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ключи сообщений - английский текст
const (
	MsgGenericError        = "An error occurred"
	MsgUserNotFound        = "User not found"
	MsgRewardNotFound      = "Reward not found"
	MsgMaterialNotFound    = "Material type not found"
	MsgConcurrentUpdate    = "Wallet is busy, please try again"
	MsgDepositOK           = "Deposit completed!"
	MsgWithdrawOK          = "Withdrawal completed!"
	MsgSaleOK              = "Sale recorded!"
	MsgRedeemOK            = "Reward redeemed!"
	MsgInvalidDeposit      = "Deposit amount must be greater than 0"
	MsgInvalidWithdraw     = "Withdrawal amount must be greater than 0"
	MsgInvalidSale         = "Sale total and item weights must be valid"
	MsgInvalidRewardCost   = "Reward cost must not be negative"
	MsgInsufficientBalance = "Insufficient balance"
	MsgInsufficientPoints  = "Insufficient points"
	DetailWithdraw         = "Withdraw from system"
	DetailRedeem           = "Redeem reward: %s"
)

const UnknownUserName = "Unknown User"

var thai = map[string]string{
	MsgGenericError:        "เกิดข้อผิดพลาด",
	MsgUserNotFound:        "ไม่พบข้อมูลผู้ใช้",
	MsgRewardNotFound:      "ไม่พบของรางวัล",
	MsgMaterialNotFound:    "ไม่พบประเภทขยะ",
	MsgConcurrentUpdate:    "กระเป๋าเงินกำลังถูกใช้งาน กรุณาลองใหม่",
	MsgDepositOK:           "ฝากเงินสำเร็จ!",
	MsgWithdrawOK:          "ถอนเงินสำเร็จ!",
	MsgSaleOK:              "บันทึกการขายสำเร็จ!",
	MsgRedeemOK:            "แลกของรางวัลสำเร็จ!",
	MsgInvalidDeposit:      "ยอดฝากต้องมากกว่า 0",
	MsgInvalidWithdraw:     "ยอดถอนต้องมากกว่า 0",
	MsgInvalidSale:         "ยอดขายหรือน้ำหนักไม่ถูกต้อง",
	MsgInvalidRewardCost:   "แต้มของรางวัลต้องไม่ติดลบ",
	MsgInsufficientBalance: "ยอดเงินคงเหลือไม่พอ",
	MsgInsufficientPoints:  "แต้มสะสมไม่เพียงพอ",
	DetailWithdraw:         "ถอนเงินออกจากระบบ",
	DetailRedeem:           "แลกของรางวัล: %s",
}

var supported = []language.Tag{language.Thai, language.English}

var matcher = language.NewMatcher(supported)

func init() {
	for key, text := range thai {
		_ = message.SetString(language.Thai, key, text)
		_ = message.SetString(language.English, key, key)
	}
}

// Messages - тексты для пользователя на языке ledger.locale
type Messages struct {
	printer *message.Printer
}

// NewMessages - неизвестная локаль заменяется тайской
func NewMessages(locale string) *Messages {
	tag := language.Thai
	if locale != "" {
		t, _, conf := matcher.Match(language.Make(locale))
		if conf != language.No {
			tag = t
		}
	}
	base, _ := tag.Base()
	tag, _ = language.Compose(base)
	return &Messages{message.NewPrinter(tag)}
}

func (m *Messages) Text(key string, args ...any) string {
	return m.printer.Sprintf(key, args...)
}
