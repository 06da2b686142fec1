package notifier

type Database interface {
	Open() error
	Close() error
}
