package main

import (
	"github.com/momentics/reactorcore/tcp"
	"github.com/momentics/reactorcore/tlsconn"
	"github.com/momentics/reactorcore/xstatus"
)

func echoAcceptHandler(c *tcp.Connection) {
	c.SetReadHandler(func() xstatus.Status {
		for _, chunk := range c.InBuffer().Chunks() {
			c.OutBuffer().Append(chunk)
		}
		c.InBuffer().RemovePrefix(c.InBuffer().Size())
		c.Selector().EnableWriteCallback(c, true)
		return xstatus.OkStatus
	})
	c.SetCloseHandler(func(st xstatus.Status, dir tcp.CloseDirective) {
		if dir == tcp.CloseRead {
			c.FlushAndClose()
		}
	})
}

func tlsEchoAcceptHandler(c *tlsconn.Connection) {
	c.SetReadHandler(func() xstatus.Status {
		for _, chunk := range c.InBuffer().Chunks() {
			c.Write(chunk)
		}
		c.InBuffer().RemovePrefix(c.InBuffer().Size())
		return xstatus.OkStatus
	})
}
