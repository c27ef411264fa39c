package main

// Compiled-in modules register themselves in init.
import (
	_ "github.com/flemzord/omnihear/internal/gateway"
	_ "github.com/flemzord/omnihear/modules/channel/telegram"
	_ "github.com/flemzord/omnihear/modules/lyrics/genius"
	_ "github.com/flemzord/omnihear/modules/provider/openaicompat"
	_ "github.com/flemzord/omnihear/modules/stt/assemblyai"
	_ "github.com/flemzord/omnihear/modules/stt/groq"
)
