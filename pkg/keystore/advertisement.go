package keystore

// Mesh proxy service UUID, used in network-identifier advertisements.
const proxyServiceUUID = 0x1828

// Identification type for network ID advertisements.
const identificationTypeNetworkID = 0x00

// buildNetworkIDAdvertisement assembles the advertising payload for
// network-identifier advertising of one subnet: flags, the proxy service
// UUID list, and service data carrying the 8-byte network identifier.
// The payload is cached on the record rather than persisted, so it is
// rebuilt whenever a record is loaded.
func buildNetworkIDAdvertisement(networkID [8]byte) []byte {
	adv := make([]byte, 0, 20)

	// Flags: general discoverable, BR/EDR not supported.
	adv = append(adv, 0x02, 0x01, 0x06)

	// Complete list of 16-bit service UUIDs.
	adv = append(adv, 0x03, 0x03,
		byte(proxyServiceUUID&0xFF), byte(proxyServiceUUID>>8))

	// Service data: proxy service UUID, identification type, network ID.
	adv = append(adv, byte(4+len(networkID)), 0x16,
		byte(proxyServiceUUID&0xFF), byte(proxyServiceUUID>>8),
		identificationTypeNetworkID)
	adv = append(adv, networkID[:]...)

	return adv
}
