// Package rfc2136 implements the provider interface for RFC 2136 Dynamic DNS
// updates, supported by BIND, Knot DNS, PowerDNS, Windows DNS and others.
//
// # Features
//
//   - Records are listed with a zone transfer (AXFR), which the server must
//     allow for this client
//   - Changes are sent as DNS UPDATE messages; a batch is one message and
//     is applied atomically by the server
//   - Creates carry an "RRset does not exist" prerequisite and updates a
//     value-dependent "RRset exists" prerequisite, so a concurrent external
//     change fails with YXRRSET/NXRRSET instead of being overwritten
//   - TSIG authentication (HMAC-SHA256, SHA512, MD5)
//   - TCP or UDP transport
//
// # Configuration
//
//	providers:
//	  - name: bind
//	    type: rfc2136
//	    config:
//	      SERVER: ns1.example.com:53
//	      TSIG_KEY_NAME: traefik-dns.
//	      TSIG_SECRET_FILE: /run/secrets/tsig-key
//	      TSIG_ALGORITHM: hmac-sha256
//	      TTL: "300"
//	      USE_TCP: "true"
package rfc2136
