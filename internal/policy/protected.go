package policy

// protectedFields は汎用更新で受け付けても反映しないフィールド。
// 状態・支払い・所有者・カウンタ・識別子はそれぞれ専用の操作でのみ変更する。
var protectedFields = map[string]struct{}{
	"_id":              {},
	"id":               {},
	"userId":           {},
	"status":           {},
	"paymentStatus":    {},
	"paymentId":        {},
	"paymentAmount":    {},
	"paidAt":           {},
	"qrGenerated":      {},
	"hugCount":         {},
	"guestBookEntries": {},
	"createdAt":        {},
	"updatedAt":        {},
	"__v":              {},
}

// IsProtectedField は汎用更新で変更できないフィールドかを返す。
func IsProtectedField(name string) bool {
	_, ok := protectedFields[name]
	return ok
}

// StripProtectedFields は汎用更新の入力から保護フィールドを取り除いた新しいマップを返す。
// 取り除いたフィールド名も返す。
func StripProtectedFields[V any](fields map[string]V) (map[string]V, []string) {
	kept := make(map[string]V, len(fields))
	var dropped []string
	for name, value := range fields {
		if IsProtectedField(name) {
			dropped = append(dropped, name)
			continue
		}
		kept[name] = value
	}
	return kept, dropped
}
