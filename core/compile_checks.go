package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ PaymentService  = (*Service)(nil)
	_ PaymentStore    = (*MemoryPaymentStore)(nil)
	_ SavedCardStore  = (*MemorySavedCardStore)(nil)
	_ ReplayLedger    = (*MemoryReplayLedger)(nil)
	_ RequestLogSink  = LoggerRequestSink{}
	_ MetricsRecorder = NopMetricsRecorder{}
	_ Clock           = SystemClock{}
	_ IDGenerator     = UUIDGenerator{}
	_ RawConfigLoader = YAMLFileLoader{}
	_ ConfigProvider  = (*CfgxConfigProvider)(nil)
	_ OptionsResolver = GoOptionsResolver{}
	_ StructValidator = (*structValidator)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
