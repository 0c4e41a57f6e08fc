package server

import (
	"missiondesk/internal/engine/auth"
	"missiondesk/internal/lifecycle"
)

// messages maps error codes to user-facing text per locale. The Persian strings
// are the ones the web client already shows.
type messages struct {
	locale string
}

var catalog = map[string]map[string]string{
	lifecycle.CodeMissingFields: {
		"fa": "فیلدهای ماموریت ناقص است. لطفا تمام اطلاعات را وارد کنید.",
		"en": "Mission fields are incomplete. Please fill in every field.",
	},
	lifecycle.CodeInvalidField: {
		"fa": "مقدار وارد شده نامعتبر است.",
		"en": "A submitted value is invalid.",
	},
	lifecycle.CodeUnknownAssignee: {
		"fa": "کاربر مسئول یافت نشد.",
		"en": "The assignee does not exist.",
	},
	lifecycle.CodeInvalidSchedule: {
		"fa": "زمان پایان نمی‌تواند قبل از زمان شروع باشد.",
		"en": "The end time cannot precede the start time.",
	},
	lifecycle.CodeInvalidStatus: {
		"fa": "وضعیت گزارش نامعتبر است.",
		"en": "A report must declare the mission in progress or completed.",
	},
	lifecycle.CodeUnknownSteps: {
		"fa": "چک‌لیست شامل موارد ناشناخته است.",
		"en": "The checklist state names steps that are not on the mission.",
	},
	lifecycle.CodeInvalidTarget: {
		"fa": "کاربر ارجاع‌گیرنده نامعتبر است.",
		"en": "The delegation target is invalid.",
	},
	lifecycle.CodeNotAssignee: {
		"fa": "شما مسئول این ماموریت نیستید.",
		"en": "You are not responsible for this mission.",
	},
	lifecycle.CodeNotTarget: {
		"fa": "این ماموریت به شما ارجاع داده نشده است.",
		"en": "This mission was not delegated to you.",
	},
	lifecycle.CodeNotDelegator: {
		"fa": "فقط ارجاع دهنده میتواند وضعیت را پاک کند.",
		"en": "Only the delegator can clear the delegation.",
	},
	lifecycle.CodeNotAdmin: {
		"fa": "این عملیات فقط برای مدیر مجاز است.",
		"en": "Only an administrator can do this.",
	},
	lifecycle.CodeNotSelf: {
		"fa": "شما فقط می‌توانید اطلاعات خود را ویرایش کنید.",
		"en": "You can only edit your own profile.",
	},
	lifecycle.CodeMissionCompleted: {
		"fa": "این ماموریت تکمیل شده است.",
		"en": "This mission is already completed.",
	},
	lifecycle.CodeDelegationPending: {
		"fa": "یک ارجاع در انتظار پاسخ برای این ماموریت وجود دارد.",
		"en": "A delegation for this mission is still pending.",
	},
	lifecycle.CodeDelegationNotReady: {
		"fa": "ارجاعی در انتظار پاسخ نیست.",
		"en": "There is no pending delegation.",
	},
	lifecycle.CodeDuplicateUser: {
		"fa": "این نام کاربری قبلا ثبت شده است.",
		"en": "That user name is already taken.",
	},
	"mission_not_found": {
		"fa": "ماموریت یافت نشد.",
		"en": "Mission not found.",
	},
	"user_not_found": {
		"fa": "کاربر یافت نشد.",
		"en": "User not found.",
	},
	auth.CodeWrongPassword: {
		"fa": "رمز عبور اشتباه است.",
		"en": "Wrong password.",
	},
	auth.CodeInvalidToken: {
		"fa": "نشست شما نامعتبر یا منقضی شده است.",
		"en": "Your session is invalid or has expired.",
	},
	"unauthorized": {
		"fa": "ابتدا وارد شوید.",
		"en": "Authentication required.",
	},
	"actor_mismatch": {
		"fa": "شناسه کاربر با نشست فعلی مطابقت ندارد.",
		"en": "The user id does not match the signed-in user.",
	},
	"internal_error": {
		"fa": "خطای داخلی سرور رخ داد.",
		"en": "Internal server error.",
	},
	"bad_request": {
		"fa": "درخواست نامعتبر است.",
		"en": "Bad request.",
	},
}

// For returns the message for code, or fallback when the code is unknown.
func (m messages) For(code, fallback string) string {
	entry, ok := catalog[code]
	if !ok {
		return fallback
	}
	if msg, ok := entry[m.locale]; ok {
		return msg
	}
	if msg, ok := entry["fa"]; ok {
		return msg
	}
	return fallback
}
