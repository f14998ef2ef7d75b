// This file is part of drift-backup
//
// Copyright (C) 2024  Drift Labs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>

package cmd

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
)

// agentClient returns an HTTP client that reaches the agent control
// server, over its unix socket or TCP address. A couple of quick retries
// paper over the race of an agent that is still starting up.
func agentClient() (*retryablehttp.Client, string) {
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.Logger = nil

	if strings.HasPrefix(addr, "unix://") {
		sock := strings.TrimPrefix(addr, "unix://")
		c.HTTPClient = &http.Client{
			Transport: &http.Transport{
				DialContext: func(_ context.Context, _, _ string) (net.Conn, error) {
					return net.Dial("unix", sock)
				},
			},
		}
		return c, "http://unix"
	}

	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return c, base
}

func agentGet(path string, v interface{}) error {
	c, base := agentClient()
	resp, err := c.Get(base + path)
	if err != nil {
		return err
	}
	return decodeResponse(resp, v)
}

func agentPost(path string, v interface{}) error {
	c, base := agentClient()
	resp, err := c.Post(base+path, "application/json", nil)
	if err != nil {
		return err
	}
	return decodeResponse(resp, v)
}
