package enums

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeFundsCleared NotificationType = "funds_cleared"
	NotificationTypeWalletDebit  NotificationType = "wallet_debit"
)

func (n NotificationType) IsValid() bool {
	return n == NotificationTypeFundsCleared || n == NotificationTypeWalletDebit
}
