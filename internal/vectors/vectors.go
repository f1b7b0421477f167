// Package vectors holds the BOLT #8 Appendix A test vectors.
//
// The values are hex strings exactly as published, plus the frames of the
// empty message sent over the same session. They are used by the unit tests
// and by the `bolt8 vectors` command.
package vectors

import "encoding/hex"

// Keys used by both sides.
const (
	InitiatorStatic    = "1111111111111111111111111111111111111111111111111111111111111111"
	InitiatorStaticPub = "034f355bdcb7cc0af728ef3cceb9615d90684bb5b2ca5f859ab0f0b704075871aa"
	InitiatorEphemeral = "1212121212121212121212121212121212121212121212121212121212121212"

	ResponderStatic    = "2121212121212121212121212121212121212121212121212121212121212121"
	ResponderStaticPub = "028d7500dd4c12685d1f568b4c2b5048e8534b873319f3a8daa612b469132ec7f7"
	ResponderEphemeral = "2222222222222222222222222222222222222222222222222222222222222222"
)

// Handshake acts and their intermediate state.
const (
	ActOne   = "00036360e856310ce5d294e8be33fc807077dc56ac80d95d9cd4ddbd21325eff73f70df6086551151f58b8afe6c195782c6a"
	ActTwo   = "0002466d7fcae563e5cb09a0d1870bb580344804617879a14949cf22285f1bae3f276e2470b93aac583c9ef6eafca3f730ae"
	ActThree = "00b9e3a702e93e3a9948c2ed6e5fd7590a6e1c3a0344cfc9d5b57357049aa22355361aa02e55a8fc28fef5bd6d71ad0c38228dc68b1c466263b47fdf31e560e139ba"

	InitialHash = "8401b3fdcaaa710b5405400536a3d5fd7792fe8e7fe29cd8b687216fe323ecbd"

	ActOneHash        = "9d1ffbb639e7e20021d9259491dc7b160aab270fb1339ef135053f6f2cebe9ce"
	ActOneChainingKey = "b61ec1191326fa240decc9564369dbb3ae2b34341d1e11ad64ed89f89180582f"
	ActOneTempKey     = "e68f69b7f096d7917245f5e5cf8ae1595febe4d4644333c99f9c4a1282031c9f"

	ActTwoHash        = "90578e247e98674e661013da3c5c1ca6a8c8f48c90b485c0dfa1494e23d56d72"
	ActTwoChainingKey = "e89d31033a1b6bf68c07d22e08ea4d7884646c4b60a9528598ccb4ee2c8f56ba"
	ActTwoTempKey     = "908b166535c01a935cf1e130a5fe895ab4e6f3ef8855d87e9b7581c4ab663ddc"

	// ActThreeHash is h after the encrypted static key, before the final tag.
	ActThreeHash        = "5dcb5ea9b4ccc755e0e3456af3990641276e1d5dc9afd82f974d90a47c918660"
	ActThreeChainingKey = "919219dbb2920afa8db80f9a51787a840bcf111ed8d588caf9ab4be716e42b01"
	ActThreeTempKey     = "981a46c820fb7a241bc8184ba4bb1f01bcdfafb00dde80098cb8c38db9141520"

	FinalHash = "3e385d26eb49e88ddd66f70f7b24e597867feecf320bb2245b83adb5a2399ce3"

	// Initiator's send key and receive key after Split.
	SendKey = "969ab31b4d288cedf6218839b27a3e2140827047f2c0f01bf5c04435d43511a9"
	RecvKey = "bb9020b8965f4df047e07f955f3c4b88418984aadc5cdb35096b9ea8fa5c3442"
)

// Failure inputs for the responder.
const (
	ActOneBadVersion = "01036360e856310ce5d294e8be33fc807077dc56ac80d95d9cd4ddbd21325eff73f70df6086551151f58b8afe6c195782c6a"
	ActOneBadKey     = "00046360e856310ce5d294e8be33fc807077dc56ac80d95d9cd4ddbd21325eff73f70df6086551151f58b8afe6c195782c6a"
	ActOneBadMAC     = "00036360e856310ce5d294e8be33fc807077dc56ac80d95d9cd4ddbd21325eff73f70df6086551151f58b8afe6c195782c6b"

	ActTwoBadVersion = "0102466d7fcae563e5cb09a0d1870bb580344804617879a14949cf22285f1bae3f276e2470b93aac583c9ef6eafca3f730ae"
	ActTwoBadKey     = "0004466d7fcae563e5cb09a0d1870bb580344804617879a14949cf22285f1bae3f276e2470b93aac583c9ef6eafca3f730ae"
	ActTwoBadMAC     = "0002466d7fcae563e5cb09a0d1870bb580344804617879a14949cf22285f1bae3f276e2470b93aac583c9ef6eafca3f730af"
)

// HelloFrames are the initiator's frames for the message "hello", keyed by
// message index.
var HelloFrames = map[int]string{
	0:    "cf2b30ddf0cf3f80e7c35a6e6730b59fe802473180f396d88a8fb0db8cbcf25d2f214cf9ea1d95",
	1:    "72887022101f0b6753e0c7de21657d35a4cb2a1f5cde2650528bbc8f837d0f0d7ad833b1a256a1",
	499:  "0b0b7c16d2930e64a2db554f211f3bb279bf29701642655ce87e168ac0c6a19cdfe2b631d9e580",
	500:  "178cb9d7387190fa34db9c2d50027d21793c9bc2d40b1e14dcf30ebeeeb220f48364f7a4c68bf8",
	501:  "1b186c57d44eb6de4c057c49940d79bb838a145cb528d6e8fd26dbe50a60ca2c104b56b60e45bd",
	999:  "516fc7e55638f7f1790d09213401c394b2e62a782f4970bac42ea3f44bd5d282620683b2f7c9e0",
	1000: "4a2f3cc3b5e78ddb83dcb426d9863d9d9a723b0337c89dd0b005d89f8d3c05c52b76b29b740f09",
	1001: "2ecd8c8a5629d0d02ab457a0fdd0f7b90a192cd46be5ecb6ca570bfc5e268338b1a16cf4ef2d36",
}

// EmptyFrames are the initiator's frames for the empty message.
var EmptyFrames = map[int]string{
	0:    "cf2e74ae0afdeaaa1bb0eb5b8e8934da542985c024efee240c8b5911c0697cb09839",
	1:    "728d528ed5e92a7342a29c4b8e76eec005a8b985c563114a91066f7a75e422686310",
	499:  "0b0ef30916ddf5e33dde082424aaebab86b4cf573b986b282cb60592f60c02c3d1bb",
	500:  "178957f9a050623aead4e48223a70b1694a09c8fe6e6edae0461fda6a1c6c614d952",
	999:  "516a9808dfe307adeaab7419fc78a38d789f4d57d07fa17d5752ef82c90d5c8088b4",
	1000: "4a2a14788113cc2e85a856e603adf300d0170d78f44f5741c9db99c99e4558101c6d",
	1001: "2ec846c45680886f829fc847b04a035902dd4666b1862921cab404687643daafec23",
}

// TransportMessages is the number of messages sent in the transport vectors.
const TransportMessages = 1002

// Bytes decodes a vector. It panics on malformed hex, which can only be a
// typo in this file.
func Bytes(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic("vectors: " + err.Error())
	}
	return b
}

// Key32 decodes a 32-byte vector.
func Key32(s string) [32]byte {
	var k [32]byte
	copy(k[:], Bytes(s))
	return k
}

// Key33 decodes a 33-byte vector.
func Key33(s string) [33]byte {
	var k [33]byte
	copy(k[:], Bytes(s))
	return k
}
