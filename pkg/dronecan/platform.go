package dronecan

import (
	"math/rand"
	"time"

	"github.com/golang/glog"
)

// Platform abstracts the hardware services the engine needs: monotonic
// time, a random source for collision backoff (not cryptographic), the
// stable 16-byte unique hardware id, and a restart primitive.
type Platform interface {
	Now() time.Time
	Rand() uint32
	UniqueID() [UniqueIDLen]byte
	Restart()
}

type sysPlatform struct {
	uid     [UniqueIDLen]byte
	restart func()
}

// NewSystemPlatform builds a Platform on the host clock and math/rand.
// restart may be nil, in which case a restart request is only logged.
func NewSystemPlatform(uid [UniqueIDLen]byte, restart func()) Platform {
	return &sysPlatform{uid: uid, restart: restart}
}

func (p *sysPlatform) Now() time.Time { return time.Now() }

func (p *sysPlatform) Rand() uint32 { return rand.Uint32() }

func (p *sysPlatform) UniqueID() [UniqueIDLen]byte { return p.uid }

func (p *sysPlatform) Restart() {
	if p.restart == nil {
		glog.Warning("restart requested, no restart hook installed")
		return
	}
	p.restart()
}
