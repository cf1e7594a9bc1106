// Package notify delivers outbound Telegram notifications.
//
// Settings are held per session in memory and dropped when the session is
// destroyed. Delivery failures are logged and swallowed; callers never see
// them except through SendTest.
package notify
