// Package model implements the node's access-layer data model:
// Node > Element > Model.
//
// A node has one or more addressable elements; element 0 is the primary
// element and always exists. Each element hosts models identified by a
// 32-bit model ID (company ID in the high half, model ID in the low
// half). The two mandatory foundation models, the Configuration Server
// and the Health Server, are installed on the primary element exactly
// once per process lifetime by SetupDefaultModels.
//
// The node also owns the identity state written by provisioning: the
// device UUID, the primary unicast address and the device key.
package model
