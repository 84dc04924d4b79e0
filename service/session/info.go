package session

import (
	"github.com/aiedbg/aiedbg/pkg/aie"
	"github.com/aiedbg/aiedbg/service/api"
)

// infoReply answers the requests that don't depend on the target state,
// they are the same for every backend.
func infoReply(req api.Request) (api.Reply, bool) {
	switch r := req.(type) {
	case api.QuerySupported:
		return api.Text(aie.Features), true
	case api.StartNoAck:
		return api.OK(), true
	case api.RegisterInfo:
		info, err := aie.RegisterInfo(r.Index)
		if err != nil {
			return errorReply(err), true
		}
		return api.Text(info), true
	case api.HostInfo:
		return api.Text(aie.HostInfo()), true
	case api.MemoryRegionInfo:
		return api.Text(aie.MemoryRegionInfo(r.Addr)), true
	case api.HaltReason:
		return api.Stopped(api.SIGTRAP), true
	}
	return api.Reply{}, false
}
